package main

import (
	"fmt"
	"os"

	"github.com/chkfat/chkfat/cmd/cmd"
	"github.com/chkfat/chkfat/internal/env"
)

func main() {
	PrintLogo()

	os.Exit(cmd.Execute())
}

func PrintLogo() {
	fmt.Println("      _     _     __       _   ")
	fmt.Println("  ___| |__ | | __/ _| __ _| |_ ")
	fmt.Println(" / __| '_ \\| |/ / |_ / _` | __|")
	fmt.Println("| (__| | | |   <|  _| (_| | |_ ")
	fmt.Println(" \\___|_| |_|_|\\_\\_|  \\__,_|\\__|")
	fmt.Println()
	fmt.Println("FAT allocation table checker")
	fmt.Println()
	fmt.Printf("Version:   %s\n", env.Version)
	fmt.Printf("Commit:    %s\n", env.CommitHash)
	fmt.Printf("Build Time: %s\n", env.BuildTime)
	fmt.Println(" ")
}
