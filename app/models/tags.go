package models

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tagPunct is the punctuation a tag may carry besides letters and digits.
// Separators such as ':' and '/' are excluded because tags appear in
// storage keys and URLs.
const tagPunct = "-_+.#"

// NormalizeTag lowercases and trims a tag and joins inner whitespace runs
// with a dash. The result is 1..50 runes of letters in any script, digits
// and the characters in tagPunct.
func NormalizeTag(raw string) (string, error) {
	tag := strings.Join(strings.Fields(strings.ToLower(raw)), "-")
	if tag == "" {
		return "", fmt.Errorf("tag must not be blank")
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return "", fmt.Errorf("tag %q exceeds %d characters", tag, MaxTagLength)
	}
	for _, r := range tag {
		if !validTagRune(r) {
			return "", fmt.Errorf("tag %q contains %q; only letters, digits and %s are allowed", tag, r, tagPunct)
		}
	}
	return tag, nil
}

func validTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || strings.ContainsRune(tagPunct, r)
}

// NormalizeTags normalizes every tag and returns the sorted set.
func NormalizeTags(raw []string) ([]string, error) {
	verr := &ValidationError{}
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for i, r := range raw {
		tag, err := NormalizeTag(r)
		if err != nil {
			verr.Add(fmt.Sprintf("tags[%d]", i), err.Error())
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) > MaxTags {
		verr.Add("tags", fmt.Sprintf("must have at most %d items", MaxTags))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	sort.Strings(tags)
	return tags, nil
}

// HasTag reports whether the normalized tag is attached to the post.
func (p *Post) HasTag(tag string) bool {
	i := sort.SearchStrings(p.Tags, tag)
	return i < len(p.Tags) && p.Tags[i] == tag
}
