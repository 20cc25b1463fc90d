// The main package for the cf-clearance-scraper executable.
package main

import (
	"github.com/dxywop/cf-clearance-scraper/cmd"
)

func main() {
	cmd.Execute()
}
