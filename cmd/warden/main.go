// Command warden runs the policy-enforcing gateway.
package main

import "github.com/wardenhq/warden/cmd/warden/cmd"

func main() {
	cmd.Execute()
}
