package ecode

// 业务错误码，0 表示成功
const (
	Success = 0

	ServerErr      = 10001
	ParamsErr      = 10002
	RequireAuthErr = 10003
	SignatureErr   = 10004
	NotFoundErr    = 10005
	UnavailableErr = 10006
	DuplicateErr   = 10007
)

var messages = map[int]string{
	Success:        "ok",
	ServerErr:      "internal server error",
	ParamsErr:      "invalid params",
	RequireAuthErr: "authentication required",
	SignatureErr:   "invalid signature",
	NotFoundErr:    "not found",
	UnavailableErr: "service unavailable",
	DuplicateErr:   "duplicate request",
}

func Text(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[ServerErr]
}
