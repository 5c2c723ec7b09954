package hqframe

import "fmt"

// ErrorCode is an HTTP/3 application error code (RFC 9114 Section 8.1).
type ErrorCode uint64

const (
	ErrCodeNoError            ErrorCode = 0x100
	ErrCodeGeneralProtocol    ErrorCode = 0x101
	ErrCodeInternal           ErrorCode = 0x102
	ErrCodeStreamCreation     ErrorCode = 0x103
	ErrCodeClosedCriticalStrm ErrorCode = 0x104
	ErrCodeFrameUnexpected    ErrorCode = 0x105
	ErrCodeFrameError         ErrorCode = 0x106
	ErrCodeExcessiveLoad      ErrorCode = 0x107
	ErrCodeIDError            ErrorCode = 0x108
	ErrCodeSettingsError      ErrorCode = 0x109
	ErrCodeMissingSettings    ErrorCode = 0x10a
	ErrCodeRequestRejected    ErrorCode = 0x10b
	ErrCodeRequestCancelled   ErrorCode = 0x10c
	ErrCodeRequestIncomplete  ErrorCode = 0x10d
	ErrCodeMessageError       ErrorCode = 0x10e
	ErrCodeConnect            ErrorCode = 0x10f
	ErrCodeVersionFallback    ErrorCode = 0x110
	ErrCodeQPACKDecompression ErrorCode = 0x200
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNoError:
		return "H3_NO_ERROR"
	case ErrCodeGeneralProtocol:
		return "H3_GENERAL_PROTOCOL_ERROR"
	case ErrCodeInternal:
		return "H3_INTERNAL_ERROR"
	case ErrCodeStreamCreation:
		return "H3_STREAM_CREATION_ERROR"
	case ErrCodeClosedCriticalStrm:
		return "H3_CLOSED_CRITICAL_STREAM"
	case ErrCodeFrameUnexpected:
		return "H3_FRAME_UNEXPECTED"
	case ErrCodeFrameError:
		return "H3_FRAME_ERROR"
	case ErrCodeExcessiveLoad:
		return "H3_EXCESSIVE_LOAD"
	case ErrCodeIDError:
		return "H3_ID_ERROR"
	case ErrCodeSettingsError:
		return "H3_SETTINGS_ERROR"
	case ErrCodeMissingSettings:
		return "H3_MISSING_SETTINGS"
	case ErrCodeRequestRejected:
		return "H3_REQUEST_REJECTED"
	case ErrCodeRequestCancelled:
		return "H3_REQUEST_CANCELLED"
	case ErrCodeRequestIncomplete:
		return "H3_REQUEST_INCOMPLETE"
	case ErrCodeMessageError:
		return "H3_MESSAGE_ERROR"
	case ErrCodeConnect:
		return "H3_CONNECT_ERROR"
	case ErrCodeVersionFallback:
		return "H3_VERSION_FALLBACK"
	case ErrCodeQPACKDecompression:
		return "QPACK_DECOMPRESSION_FAILED"
	default:
		return fmt.Sprintf("H3_ERROR(0x%x)", uint64(c))
	}
}
