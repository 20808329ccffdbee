// +build gofuzz

package lexer

import (
	"fmt"
)

func Fuzz(data []byte) int {
	var l Lexer
	line, err := l.Run(data, "")
	if err != nil {
		if line != nil {
			panic(fmt.Errorf("line returned with error %v: %+v", err, line))
		}
		return 0
	}
	if line.Key == "" {
		panic(fmt.Errorf("empty key accepted: %+v", line))
	}
	if len(line.Samples) == 0 && len(line.Errors) == 0 {
		panic(fmt.Errorf("line without samples or errors: %+v", line))
	}
	return 1
}
