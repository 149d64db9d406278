package cmd

import (
	"fmt"
	"io"
)

const banner = `
        _       _            _           _
  _ __ | | __ _| |_ ___   __| | __ _ ___| |__
 | '_ \| |/ _` + "`" + ` | __/ _ \ / _` + "`" + ` |/ _` + "`" + ` / __| '_ \
 | |_) | | (_| | ||  __/| (_| | (_| \__ \ | | |
 | .__/|_|\__,_|\__\___| \__,_|\__,_|___/_| |_|
 |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Dashboard Server - Version %s\x1b[0m\n\n", Version)
}
