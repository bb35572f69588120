package tracelog

import (
	"log/slog"
	"strconv"
	"time"

	slogformatter "github.com/samber/slog-formatter"
)

// UnixTimestampFormatter renders Unix timestamps (seconds) stored under key
// with the configured time format.
func UnixTimestampFormatter(key string) slogformatter.Formatter {
	return slogformatter.FormatByKey(key, func(v slog.Value) slog.Value {
		var timestamp int64

		switch val := v.Any().(type) {
		case int64:
			timestamp = val
		case int:
			timestamp = int64(val)
		case float64:
			timestamp = int64(val)
		case string:
			parsed, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return v
			}
			timestamp = parsed
		}

		if timestamp <= 0 {
			return v
		}
		return slog.StringValue(time.Unix(timestamp, 0).Format(currentFormatterConfig().TimeFormat))
	})
}
