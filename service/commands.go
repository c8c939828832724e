package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"inkwell/app/identity"
	"inkwell/app/models"
	"inkwell/app/repositories"
)

var osExit = os.Exit

const defaultTokenTTL = 24 * time.Hour

// HandleCommand runs a service subcommand and returns its exit code.
func HandleCommand(args []string) int {
	if len(args) < 1 {
		printServiceHelp()
		osExit(1)
		return 1
	}

	cmd := args[0]
	switch cmd {
	case "serve":
		return serve()
	case "clean":
		return clean()
	case "init":
		return initDb()
	case "backup":
		return backup()
	case "restore":
		if len(args) < 2 {
			fmt.Println("Error: backup file path required for restore")
			osExit(1)
			return 1
		}
		return restore(args[1])
	case "token":
		return token(args[1:])
	case "help":
		printServiceHelp()
		return 0
	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
		printServiceHelp()
		osExit(1)
		return 1
	}
}

func printServiceHelp() {
	helpText := `Usage: inkwell <command>

Commands:
  serve                           Run the blog API server
  init                            Initialize a new empty database
  clean                           Remove the blog database
  backup                          Create a backup of the database
  restore <file>                  Restore the database from a backup
  token <subject> <role> [ttl]    Issue a bearer token (roles: reader, author, moderator, admin)
  help                            Display this help message

Configuration is read from INKWELL_* environment variables.
`
	fmt.Println(helpText)
}

func serve() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := RunAppServer(ctx); err != nil {
		fmt.Printf("Server error: %v\n", err)
		return 1
	}
	return 0
}

// clean removes the database after confirmation.
func clean() int {
	dbPath, err := badgerPath()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if !exists(dbPath) {
		fmt.Println("Database is already clean (does not exist)")
		return 0
	}

	if !confirm("Are you sure you want to clean the database? This cannot be undone.") {
		fmt.Println("Operation cancelled")
		return 0
	}

	if err := os.RemoveAll(dbPath); err != nil {
		fmt.Printf("Failed to clean database: %v\n", err)
		return 1
	}
	fmt.Println("Database cleaned successfully")
	return 0
}

// initDb creates an empty database with its id sequences in place.
func initDb() int {
	dbPath, err := badgerPath()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if exists(dbPath) {
		fmt.Println("Database already exists. Use 'clean' first if you want to reinitialize.")
		return 0
	}

	store, err := repositories.OpenBadgerStore(dbPath)
	if err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		return 1
	}
	if err := store.Close(); err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		return 1
	}
	fmt.Println("Database initialized successfully")
	return 0
}

func backup() int {
	dbPath, err := badgerPath()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if !exists(dbPath) {
		fmt.Println("No database exists to backup")
		return 1
	}

	dir := backupDir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Printf("Failed to create backup directory: %v\n", err)
		return 1
	}

	db, err := openBadger(dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	backupFile := filepath.Join(dir, fmt.Sprintf("backup_%d.db", time.Now().UnixNano()))
	f, err := os.Create(backupFile)
	if err != nil {
		fmt.Printf("Failed to create backup file: %v\n", err)
		return 1
	}
	defer f.Close()

	if _, err := db.Backup(f, 0); err != nil {
		fmt.Printf("Failed to backup database: %v\n", err)
		return 1
	}
	fmt.Printf("Database backed up successfully to %s\n", backupFile)
	return 0
}

// restore replaces the database with the contents of backupFile.
func restore(backupFile string) int {
	dbPath, err := badgerPath()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	fi, err := os.Stat(backupFile)
	if err != nil {
		fmt.Printf("Backup file does not exist: %s\n", backupFile)
		return 1
	}
	if fi.Size() == 0 {
		fmt.Printf("Backup file is empty: %s\n", backupFile)
		return 1
	}

	if exists(dbPath) {
		if !confirm("Existing database found. Do you want to replace it?") {
			fmt.Println("Operation cancelled")
			return 1
		}
		if err := os.RemoveAll(dbPath); err != nil {
			fmt.Printf("Failed to remove existing database: %v\n", err)
			return 1
		}
	}

	// A plain badger handle: the store would write its own sequence
	// leases back on close and clobber the restored ones.
	db, err := openBadger(dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	f, err := os.Open(backupFile)
	if err != nil {
		fmt.Printf("Failed to open backup file: %v\n", err)
		return 1
	}
	defer f.Close()

	err = func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic occurred during restore: %v", r)
			}
		}()
		return db.Load(f, 4)
	}()
	if err != nil {
		fmt.Printf("Failed to restore database: %v\n", err)
		return 1
	}

	fmt.Println("Database restored successfully")
	return 0
}

// token prints a signed bearer token for local testing and operations.
func token(args []string) int {
	if len(args) < 2 {
		fmt.Println("Error: usage: token <subject> <role> [ttl]")
		return 1
	}
	subject, role := args[0], models.Role(args[1])
	if !role.Valid() {
		fmt.Printf("Error: unknown role %q\n", args[1])
		return 1
	}
	ttl := defaultTokenTTL
	if len(args) > 2 {
		parsed, err := time.ParseDuration(args[2])
		if err != nil || parsed <= 0 {
			fmt.Printf("Error: invalid ttl %q\n", args[2])
			return 1
		}
		ttl = parsed
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if cfg.JWTSecret == "" {
		fmt.Println("Error: INKWELL_JWT_SECRET must be set")
		return 1
	}
	signed, err := identity.NewVerifier([]byte(cfg.JWTSecret)).Issue(subject, role, ttl)
	if err != nil {
		fmt.Printf("Failed to issue token: %v\n", err)
		return 1
	}
	fmt.Println(signed)
	return 0
}
