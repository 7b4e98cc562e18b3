// Package process guards against running two hub instances at once by
// scanning the process table for another process with the same executable
// name.
package process
