package handler

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// NewRejectionResponse carries a machine-readable reason alongside the
// human-readable message so clients can offer alternate slots.
func NewRejectionResponse(reason, message string) *Response {
	return &Response{
		Status:  "rejected",
		Reason:  reason,
		Message: message,
	}
}
