package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bracketflow/internal/model"
)

// ErrNotSignal 频道闲聊、行情点评等非交易信号，消费端直接跳过
var ErrNotSignal = errors.New("not a trade signal")

var (
	ErrNoPair      = fmt.Errorf("%w: no #PAIR in message", ErrNotSignal)
	ErrNoDirection = fmt.Errorf("%w: no LONG/SHORT in message", ErrNotSignal)
	ErrIncomplete  = fmt.Errorf("%w: entry or stop loss missing", ErrNotSignal)
)

// 频道消息格式:
//
//	#BTCUSDT.P LONG
//	Entry: 65,000 - 64,800
//	Leverage: Cross 20x
//	Target 1: 66000
//	TP2: 67000
//	Stop Loss: 63000 ☠️
var (
	pairRegex      = regexp.MustCompile(`#([A-Za-z0-9]+(?:[/_-][A-Za-z0-9]+)?(?:\.[Pp])?)`)
	directionRegex = regexp.MustCompile(`(?i)\b(LONG|SHORT)\b`)
	entryRegex     = regexp.MustCompile(`(?i)\bentry(?:\s+(?:zone|price))?\s*[:：]?\s*\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
	leverageRegex  = regexp.MustCompile(`(?i)\bleverage\s*[:：]?\s*(?:cross|isolated)?\s*\(?\s*([0-9]+)\s*x`)
	targetRegex    = regexp.MustCompile(`(?i)\b(?:target|tp)\s*([1-4])\s*[:：)]?\s*\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
	stopLossRegex  = regexp.MustCompile(`(?i)\b(?:stop[\s-]*loss|sl)\s*[:：]?\s*\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

// ParseMessage 解析一条频道消息。交易对、方向、入场价和止损必须有，
// 否则按非信号处理，避免闲聊覆盖最新信号；杠杆和止盈缺失时为空值
func ParseMessage(text string, ts time.Time) (*model.Signal, error) {
	cleaned := strings.ReplaceAll(text, "☠️", "")
	cleaned = strings.ReplaceAll(cleaned, "☠", "")

	m := pairRegex.FindStringSubmatch(cleaned)
	if m == nil {
		return nil, ErrNoPair
	}
	sig := &model.Signal{
		Pair:        strings.ToUpper(m[1]),
		Timestamp:   ts,
		FullMessage: text,
	}

	d := directionRegex.FindStringSubmatch(cleaned)
	if d == nil {
		return nil, ErrNoDirection
	}
	sig.SetupType = strings.ToUpper(d[1])

	if v, ok := matchNumber(entryRegex, cleaned); ok {
		sig.Entry = model.NullFloat(v)
	}
	if l := leverageRegex.FindStringSubmatch(cleaned); l != nil {
		if v, err := strconv.ParseInt(l[1], 10, 64); err == nil && v > 0 {
			sig.Leverage = model.NullInt(v)
		}
	}
	if v, ok := matchNumber(stopLossRegex, cleaned); ok {
		sig.StopLoss = model.NullFloat(v)
	}
	for _, t := range targetRegex.FindAllStringSubmatch(cleaned, -1) {
		n, _ := strconv.Atoi(t[1])
		v, err := parseNumber(t[2])
		if err != nil || v <= 0 {
			continue
		}
		sig.SetTakeProfit(n, v)
	}
	if !sig.Entry.Valid || !sig.StopLoss.Valid {
		return nil, ErrIncomplete
	}
	return sig, nil
}

func matchNumber(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := parseNumber(m[len(m)-1])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// "65,000.5" -> 65000.5
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(s, 64)
}
