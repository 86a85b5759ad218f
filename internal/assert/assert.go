package assert

import "fmt"

func NotNil(value any, what string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", what))
	}
}

func NotEmptyStr(str, what string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", what))
	}
}

func Positive(n int, what string) {
	if n <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %d", what, n))
	}
}
