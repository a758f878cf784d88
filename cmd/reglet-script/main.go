// Command reglet-script runs CommonJS scripts under a capability policy.
package main

import "github.com/reglet-dev/reglet-script/internal/cli"

func main() {
	cli.Execute()
}
