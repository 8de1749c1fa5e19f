package main

import "github.com/NamanBalaji/rangedl/cmd"

func main() {
	cmd.Execute()
}
