// Command keybox is minimal non-interactive glue over the keybox
// vault: one-shot create/add/list/export/passwd operations driven by
// flags. It intentionally does not implement the interactive shell,
// tab-completion or inline editor described alongside the core -- those
// are a separate, larger program this package does not build.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/keyvault-go/keybox"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "create":
		cmdCreate(args)
	case "add":
		cmdAdd(args)
	case "list":
		cmdList(args)
	case "export":
		cmdExport(args)
	case "passwd":
		cmdPasswd(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: keybox <create|add|list|export|passwd> [flags]")
}

func readLine(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

func askPassphrase(prompt string) func() (string, error) {
	return func() (string, error) {
		return readLine(prompt), nil
	}
}

func openBox(path string) (*keybox.Box, error) {
	return keybox.Open(path, askPassphrase("Enter passphrase: "), askPassphrase("Enter new passphrase: "))
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	path := fs.String("path", "keybox.safe", "keybox file path")
	fs.Parse(args)

	box, err := openBox(*path)
	if err != nil {
		fail(err)
	}
	if err := box.Save(); err != nil {
		fail(err)
	}
	if err := box.Close(); err != nil {
		fail(err)
	}
	fmt.Println("Created", *path)
}

func cmdAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	path := fs.String("path", "keybox.safe", "keybox file path")
	site := fs.String("site", "", "site")
	user := fs.String("user", "", "user")
	url := fs.String("url", "", "url")
	tags := fs.String("tags", "", "space-separated tags")
	note := fs.String("note", "", "note")
	password := fs.String("password", "", "password (prompted if omitted)")
	fs.Parse(args)

	box, err := openBox(*path)
	if err != nil {
		fail(err)
	}
	defer box.Close()

	pw := *password
	if pw == "" {
		pw = readLine("Enter password for new record: ")
	}
	if _, err := box.AddRecord(map[string]string{
		"site": *site, "user": *user, "url": *url,
		"tags": *tags, "note": *note, "password": pw,
	}); err != nil {
		fail(err)
	}
	if err := box.Save(); err != nil {
		fail(err)
	}
	fmt.Println("OK")
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	path := fs.String("path", "keybox.safe", "keybox file path")
	fs.Parse(args)

	box, err := openBox(*path)
	if err != nil {
		fail(err)
	}
	defer box.Close()

	for i := 0; i < box.Len(); i++ {
		fmt.Println(box.Record(i).String())
	}
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	path := fs.String("path", "keybox.safe", "keybox file path")
	format := fs.String("format", "plain", "plain or json")
	out := fs.String("out", "", "output file (stdout if empty)")
	fs.Parse(args)

	box, err := openBox(*path)
	if err != nil {
		fail(err)
	}
	defer box.Close()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		w = f
	}

	switch *format {
	case "json":
		err = box.ExportJSON(w)
	default:
		err = box.ExportPlain(w)
	}
	if err != nil {
		fail(err)
	}
}

func cmdPasswd(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	path := fs.String("path", "keybox.safe", "keybox file path")
	fs.Parse(args)

	box, err := openBox(*path)
	if err != nil {
		fail(err)
	}
	defer box.Close()

	newPass := readLine("Enter new passphrase: ")
	if err := box.SetPassphrase(newPass); err != nil {
		fail(err)
	}
	if err := box.Save(); err != nil {
		fail(err)
	}
	fmt.Println("Passphrase changed")
}
