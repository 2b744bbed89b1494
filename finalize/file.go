package finalize

import "os"

func createFile(path string) (*os.File, error) {
	return os.Create(path)
}

func openExportedMarks(path string) (*os.File, error) {
	return os.Open(path)
}
