package infra

import (
	"fmt"
	"io"
	"path"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// References:
// https://github.com/pkg/errors/blob/master/stack.go

// Frame is the program counter of the call site that created an error.
type Frame uintptr

func (frame Frame) pc() uintptr {
	return uintptr(frame) - 1
}

func (frame Frame) file() string {
	pc := frame.pc()
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknownFile"
	}
	f, _ := fn.FileLine(pc)
	return f
}

func (frame Frame) line() int {
	pc := frame.pc()
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return 0
	}
	_, l := fn.FileLine(pc)
	return l
}

func (frame Frame) name() string {
	pc := frame.pc()
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknownFunc"
	}
	return fn.Name()
}

// Format characters:
// %s - source file
// %d - source line
// %n - function name
// %v - file:line
// %+s - <function-name>\n\t<full path>
func (frame Frame) Format(s fmt.State, verb rune) {
	switch verb {
	case 's':
		if s.Flag('+') {
			_, _ = io.WriteString(s, frame.name())
			_, _ = io.WriteString(s, "\n\t")
			_, _ = io.WriteString(s, frame.file())
		} else {
			_, _ = io.WriteString(s, path.Base(frame.file()))
		}
	case 'd':
		_, _ = io.WriteString(s, strconv.Itoa(frame.line()))
	case 'n':
		_, _ = io.WriteString(s, funcName(frame.name()))
	case 'v':
		frame.Format(s, 's')
		_, _ = io.WriteString(s, ":")
		frame.Format(s, 'd')
	}
}

func funcName(name string) string {
	i := strings.LastIndex(name, "/")
	name = name[i+1:]
	i = strings.Index(name, ".")
	return name[i+1:]
}

func callerFrame(skip int) Frame {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) < 1 {
		return 0
	}
	return Frame(pcs[0])
}

func (frame Frame) String() string {
	if frame.name() == "unknownFunc" {
		return "unknownFrame"
	}
	return funcName(frame.name()) + " " + path.Base(frame.file()) + ":" + strconv.Itoa(frame.line())
}

// ErrorStack is an error carrying the frame it was created at and the
// upstream error it wraps. It is inlined by the xlog error stack methods
// as structured fields.
type ErrorStack interface {
	error
	zapcore.ObjectMarshaler
	Unwrap() error
	Frame() Frame
}

var _ ErrorStack = (*errorStack)(nil)

type errorStack struct {
	msg      string
	upstream error
	frame    Frame
}

func (es *errorStack) Error() string {
	switch {
	case es.upstream == nil:
		return es.msg
	case len(es.msg) == 0:
		return es.upstream.Error()
	}
	return es.msg + ": " + es.upstream.Error()
}

func (es *errorStack) Unwrap() error {
	return es.upstream
}

func (es *errorStack) Frame() Frame {
	return es.frame
}

// Format
// %s, %v - the error message chain
// %+v - one layer per line with its frame
func (es *errorStack) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		var layer error = es
		for layer != nil {
			if _es, ok := layer.(*errorStack); ok {
				_, _ = io.WriteString(s, _es.msg)
				_, _ = io.WriteString(s, "\n\t")
				_, _ = io.WriteString(s, _es.frame.String())
				_, _ = io.WriteString(s, "\n")
				layer = _es.upstream
				continue
			}
			_, _ = io.WriteString(s, layer.Error())
			break
		}
		return
	}
	_, _ = io.WriteString(s, es.Error())
}

func (es *errorStack) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return enc.AddArray("errorStack", zapcore.ArrayMarshalerFunc(func(arr zapcore.ArrayEncoder) error {
		var layer error = es
		for layer != nil {
			_es, ok := layer.(*errorStack)
			if !ok {
				for _, e := range multierr.Errors(layer) {
					if err := arr.AppendObject(errorLayer{msg: e.Error()}); err != nil {
						return err
					}
				}
				return nil
			}
			if err := arr.AppendObject(errorLayer{msg: _es.msg, frame: _es.frame}); err != nil {
				return err
			}
			layer = _es.upstream
		}
		return nil
	}))
}

type errorLayer struct {
	msg   string
	frame Frame
}

func (l errorLayer) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if len(l.msg) > 0 {
		enc.AddString("msg", l.msg)
	}
	if l.frame != 0 {
		enc.AddString("frame", l.frame.String())
	}
	return nil
}

func NewErrorStack(msg string) error {
	return &errorStack{
		msg:   msg,
		frame: callerFrame(1),
	}
}

func WrapErrorStack(err error) error {
	if err == nil {
		return nil
	}
	return &errorStack{
		upstream: err,
		frame:    callerFrame(1),
	}
}

func WrapErrorStackWithMessage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &errorStack{
		msg:      msg,
		upstream: err,
		frame:    callerFrame(1),
	}
}
