// Command lexgraph runs the legal document pipeline as an HTTP service or
// from the command line.
package main

func main() {
	Execute()
}
