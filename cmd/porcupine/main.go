// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/porcupine/cmd/porcupine/cmd"
)

func main() {
	cmd.Execute()
}
