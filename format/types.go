package format

import (
	"fmt"
	"time"

	"github.com/arloliu/influxwire/errs"
)

type (
	CompressionType uint8
	Precision       uint8
	DataType        uint8
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
	CompressionGzip CompressionType = 0x5 // CompressionGzip represents gzip compression.
)

const (
	PrecisionNanosecond  Precision = 0x1 // PrecisionNanosecond writes epoch nanoseconds.
	PrecisionMicrosecond Precision = 0x2 // PrecisionMicrosecond writes epoch microseconds.
	PrecisionMillisecond Precision = 0x3 // PrecisionMillisecond writes epoch milliseconds.
	PrecisionSecond      Precision = 0x4 // PrecisionSecond writes epoch seconds.
)

// Annotated CSV column datatypes.
const (
	DataTypeString      DataType = 0x1
	DataTypeDouble      DataType = 0x2
	DataTypeLong        DataType = 0x3
	DataTypeUnsigned    DataType = 0x4
	DataTypeBoolean     DataType = 0x5
	DataTypeRFC3339     DataType = 0x6
	DataTypeRFC3339Nano DataType = 0x7
	DataTypeDuration    DataType = 0x8
	DataTypeBase64      DataType = 0x9
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	case CompressionGzip:
		return "Gzip"
	default:
		return "Unknown"
	}
}

// ContentEncoding returns the HTTP Content-Encoding token for the compression
// type, or an empty string for CompressionNone.
func (c CompressionType) ContentEncoding() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	case CompressionGzip:
		return "gzip"
	default:
		return ""
	}
}

// ParseContentEncoding maps an HTTP Content-Encoding token back to a CompressionType.
// An empty token and "identity" both map to CompressionNone.
func ParseContentEncoding(token string) (CompressionType, error) {
	switch token {
	case "", "identity":
		return CompressionNone, nil
	case "gzip", "x-gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: content encoding %q", errs.ErrInvalidCodec, token)
	}
}

func (p Precision) String() string {
	switch p {
	case PrecisionNanosecond:
		return "ns"
	case PrecisionMicrosecond:
		return "u"
	case PrecisionMillisecond:
		return "ms"
	case PrecisionSecond:
		return "s"
	default:
		return "Unknown"
	}
}

// Unit returns the duration of one timestamp tick at this precision.
func (p Precision) Unit() time.Duration {
	switch p {
	case PrecisionMicrosecond:
		return time.Microsecond
	case PrecisionMillisecond:
		return time.Millisecond
	case PrecisionSecond:
		return time.Second
	default:
		return time.Nanosecond
	}
}

// Valid reports whether p is one of the defined precisions.
func (p Precision) Valid() bool {
	return p >= PrecisionNanosecond && p <= PrecisionSecond
}

// ParsePrecision accepts the precision tokens used by the write and query endpoints.
func ParsePrecision(token string) (Precision, error) {
	switch token {
	case "", "n", "ns":
		return PrecisionNanosecond, nil
	case "u", "us", "µ":
		return PrecisionMicrosecond, nil
	case "ms":
		return PrecisionMillisecond, nil
	case "s":
		return PrecisionSecond, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrInvalidPrecision, token)
	}
}

func (d DataType) String() string {
	switch d {
	case DataTypeString:
		return "string"
	case DataTypeDouble:
		return "double"
	case DataTypeLong:
		return "long"
	case DataTypeUnsigned:
		return "unsignedLong"
	case DataTypeBoolean:
		return "boolean"
	case DataTypeRFC3339:
		return "dateTime:RFC3339"
	case DataTypeRFC3339Nano:
		return "dateTime:RFC3339Nano"
	case DataTypeDuration:
		return "duration"
	case DataTypeBase64:
		return "base64Binary"
	default:
		return "unknown"
	}
}

// IsTime reports whether the datatype holds RFC3339 timestamps.
func (d DataType) IsTime() bool {
	return d == DataTypeRFC3339 || d == DataTypeRFC3339Nano
}

// ParseDataType parses a #datatype annotation token.
func ParseDataType(token string) (DataType, error) {
	switch token {
	case "string":
		return DataTypeString, nil
	case "double":
		return DataTypeDouble, nil
	case "long":
		return DataTypeLong, nil
	case "unsignedLong":
		return DataTypeUnsigned, nil
	case "boolean":
		return DataTypeBoolean, nil
	case "dateTime", "dateTime:RFC3339":
		return DataTypeRFC3339, nil
	case "dateTime:RFC3339Nano":
		return DataTypeRFC3339Nano, nil
	case "duration":
		return DataTypeDuration, nil
	case "base64Binary":
		return DataTypeBase64, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownDataType, token)
	}
}
