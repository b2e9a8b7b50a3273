package consts

const (
	// RequestId 请求id名称
	RequestId = "request_id"

	// webhook 签名头
	SignatureHeader = "X-Signature"

	TimeLayout   = "2006-01-02 15:04:05"
	TimeLayoutMs = "2006-01-02 15:04:05.000"
)

// 订单标签，同时用于日志与执行报告
const (
	LegEntry    = "ENTRY"
	LegStopLoss = "SL"
)

// 合约交易对后缀，如 BTCUSDT.P
const PerpetualSuffix = ".P"
