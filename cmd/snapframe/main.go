package main

import "github.com/bryanchriswhite/SnapFrame/cmd/snapframe/commands"

func main() {
	commands.Execute()
}
