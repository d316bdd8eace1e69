package memlib

import "os"

func getPageSize() int { return os.Getpagesize() }
