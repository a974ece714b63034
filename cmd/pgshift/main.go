package main

import (
	"github.com/pgshift/pgshift/cmd/pgshift/cmd"
	"github.com/pgshift/pgshift/internal/common"
)

func main() {
	common.ConfigureLogging()
	cmd.Execute()
}
