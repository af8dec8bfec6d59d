package main

import "github.com/JonMunkholm/SmartMerge/cmd"

func main() {
	cmd.Execute()
}
