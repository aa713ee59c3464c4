package httpdto

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func Success[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func Error(code, message string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   message,
		Code:    code,
	}
}
