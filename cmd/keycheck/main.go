// Command keycheck validates cd-key shapes offline, without
// submitting anything to the platform. Usage:
//
//	keycheck KEY [KEY...]
//	echo "KEY1,KEY2" | keycheck
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"cardfarmd/internal/bot"
)

func main() {
	var keys []string
	if len(os.Args) > 1 {
		keys = os.Args[1:]
	} else {
		keys = readStdinKeys()
	}

	if len(keys) == 0 {
		fmt.Fprintln(os.Stderr, "usage: keycheck KEY [KEY...]  (or pipe keys on stdin)")
		os.Exit(1)
	}

	invalid := 0
	for _, key := range keys {
		if bot.ValidKeyShape(key) {
			fmt.Printf("%s OK\n", key)
		} else {
			fmt.Printf("%s INVALID\n", key)
			invalid++
		}
	}
	if invalid > 0 {
		os.Exit(1)
	}
}

func readStdinKeys() []string {
	var keys []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		for _, field := range strings.FieldsFunc(scanner.Text(), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			if field != "" {
				keys = append(keys, field)
			}
		}
	}
	return keys
}
