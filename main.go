package main

import (
	"fmt"
	"os"
	"strings"

	"inkwell/service"
)

// CliVersion is the released version of the inkwell binary.
const CliVersion = "1.0.0"

var exit = os.Exit

func main() {
	RealMain()
}

// RealMain dispatches the command line. Tests swap exit to observe codes.
func RealMain() {
	if len(os.Args) < 2 {
		printHelp()
		exit(1)
		return
	}

	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "help":
		printHelp()
	case "version":
		fmt.Printf("inkwell version %s\n", CliVersion)
	case "serve", "init", "clean", "backup", "restore", "token":
		if code := service.HandleCommand(append([]string{cmd}, os.Args[2:]...)); code != 0 {
			exit(code)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printHelp()
		exit(1)
	}
}

func printHelp() {
	helpText := `Usage: inkwell <command> [options]
Commands:
  help                           Display this help message.
  version                        Show version information.
  serve                          Run the blog API server.
  init                           Initialize a new empty database.
  clean                          Remove the blog database.
  backup                         Create a backup of the database.
  restore <file>                 Restore the database from a backup.
  token <subject> <role> [ttl]   Issue a bearer token for the API.
`
	fmt.Println(helpText)
}
