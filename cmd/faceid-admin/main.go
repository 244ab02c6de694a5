// Command faceid-admin inspects and fills the stored face encodings of the
// identity registry.
package main

func main() {
	Execute()
}
