// idsync synchronizes personnel records from a source-of-truth database
// into the Invenzi W-Access physical access-control platform.
package main

import "github.com/accessops/idsync/cmd"

func main() {
	cmd.Execute()
}
