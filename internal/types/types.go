// Package types defines the data types shared across the pdf2zh server packages.
package types

import "errors"

// Config is the persisted server configuration
type Config struct {
	Port      int    `json:"port"`
	DataDir   string `json:"data_dir"`   // uploads and results
	ConfigDir string `json:"config_dir"` // engine config files (config.json / config.toml)

	// Engine executables. Empty values are resolved from VenvDir or PATH.
	Pdf2zhCommand     string `json:"pdf2zh_command"`
	Pdf2zhNextCommand string `json:"pdf2zh_next_command"`
	VenvDir           string `json:"venv_dir"`
	WinExePath        string `json:"winexe_path"`
	EnableWinExe      bool   `json:"enable_winexe"`

	ProcessMode    string `json:"process_mode"`    // auto, pty or pipe
	OutputEncoding string `json:"output_encoding"` // utf-8, gbk, gb18030, big5, shift_jis
	EchoOutput     bool   `json:"echo_output"`     // mirror engine output to the log

	GraceSeconds       int    `json:"grace_seconds"`
	MaxAgeMinutes      int    `json:"max_age_minutes"`
	SweepSeconds       int    `json:"sweep_seconds"`
	HistoryLimit       int    `json:"history_limit"`
	HistoryFile        string `json:"history_file"`
	PostprocessWorkers int    `json:"postprocess_workers"`

	Clip ClipSettings `json:"clip"`

	LogFile    string `json:"log_file"`
	LogLevel   string `json:"log_level"`
	LogConsole bool   `json:"log_console"`
}

// ClipSettings are the default crop margins applied when a request does not set its own
type ClipSettings struct {
	WOffset     float64 `json:"w_offset"`
	HOffset     float64 `json:"h_offset"`
	OffsetRatio float64 `json:"offset_ratio"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrDocumentRead      ErrorCode = "DOCUMENT_READ_ERROR"
	ErrEmptyDocument     ErrorCode = "EMPTY_DOCUMENT"
	ErrInvalidTransition ErrorCode = "INVALID_LAYOUT_TRANSITION"
	ErrProcessFailure    ErrorCode = "PROCESS_FAILURE"
	ErrJobNotFound       ErrorCode = "JOB_NOT_FOUND"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"
	ErrConfig            ErrorCode = "CONFIG_ERROR"
	ErrEngine            ErrorCode = "ENGINE_ERROR"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Coder is implemented by domain errors that map onto an ErrorCode
type Coder interface {
	ErrorCode() ErrorCode
}

// CodeOf returns the code of the first AppError or Coder in err's chain,
// or ErrInternal when none is found.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coder Coder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// ErrorCode lets *AppError satisfy Coder
func (e *AppError) ErrorCode() ErrorCode {
	return e.Code
}
