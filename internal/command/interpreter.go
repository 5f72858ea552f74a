package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/sweeney/relay-agent/internal/logic"
)

// GroupedOffset is added to a grouped-channel slot to get the output index.
const GroupedOffset = 1

// Options configures an Interpreter.
type Options struct {
	Routes Routes

	// GroupedLegacyOff resolves grouped-channel setTurnOff through the
	// setTurnOn field, matching the deployed controller firmware.
	GroupedLegacyOff bool

	Logger *slog.Logger
}

// Result is the full outcome of handling one message.
type Result struct {
	Ack         Ack
	Command     Command
	Transitions []logic.Transition
	Err         error
}

// Interpreter decodes, validates and routes commands to a Coordinator.
// It keeps no state between calls.
type Interpreter struct {
	coord  *logic.Coordinator
	codec  Codec
	opts   Options
	logger *slog.Logger
}

// NewInterpreter creates an interpreter that drives coord.
func NewInterpreter(coord *logic.Coordinator, codec Codec, opts Options) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{coord: coord, codec: codec, opts: opts, logger: logger}
}

// Codec returns the payload codec, for encoding acknowledgments.
func (it *Interpreter) Codec() Codec {
	return it.codec
}

// Handle processes one inbound message and returns its acknowledgment.
func (it *Interpreter) Handle(topic string, payload []byte) Ack {
	return it.Process(topic, payload).Ack
}

// Process decodes payload, applies it and reports what happened.
func (it *Interpreter) Process(topic string, payload []byte) Result {
	doc, err := it.codec.Decode(payload)
	if err != nil {
		it.logger.Warn("command decode failed", "topic", topic, "error", err)
		return Result{Ack: DecodeFailure(), Err: err}
	}

	// Shutdown and unrouted topics do not read the cmd fields.
	cmd, extractErr := extract(doc)
	cmd.Channel = it.opts.Routes.Channel(topic)
	if extractErr != nil && (cmd.Channel == ChannelDiscrete || cmd.Channel == ChannelGrouped) {
		return it.fail(cmd, topic, extractErr)
	}

	var ts []logic.Transition
	switch cmd.Channel {
	case ChannelDiscrete:
		ts, err = it.coord.Apply(logic.Request{On: discreteIndex(cmd.SetTurnOn), Off: discreteIndex(cmd.SetTurnOff)})
	case ChannelGrouped:
		ts, err = it.coord.Apply(it.groupedRequest(cmd))
	case ChannelShutdown:
		ts, err = it.coord.Shutdown()
	default:
		it.logger.Debug("ignoring command on unrouted topic", "topic", topic, "command_id", cmd.CommandID)
	}
	if err != nil {
		r := it.fail(cmd, topic, err)
		r.Transitions = ts
		return r
	}

	it.logger.Info("command applied",
		"topic", topic,
		"channel", cmd.Channel.String(),
		"command_id", cmd.CommandID,
		"on", cmd.SetTurnOn,
		"off", cmd.SetTurnOff,
		"transitions", len(ts))

	return Result{
		Ack:         Ack{CommandID: cmd.CommandID, Status: StatusSuccess},
		Command:     cmd,
		Transitions: ts,
	}
}

func (it *Interpreter) fail(cmd Command, topic string, err error) Result {
	it.logger.Warn("command rejected",
		"topic", topic,
		"channel", cmd.Channel.String(),
		"command_id", cmd.CommandID,
		"error", err)
	return Result{
		Ack:     Ack{CommandID: cmd.CommandID, Status: StatusFailed},
		Command: cmd,
		Err:     err,
	}
}

// discreteIndex maps a 1-based slot to an output index; 0 is no-op.
func discreteIndex(slot int) int {
	if slot == 0 {
		return logic.NoOutput
	}
	return slot - 1
}

func (it *Interpreter) groupedRequest(cmd Command) logic.Request {
	req := logic.Request{On: logic.NoOutput, Off: logic.NoOutput}
	if cmd.SetTurnOn != 0 {
		req.On = cmd.SetTurnOn + GroupedOffset
	}
	if cmd.SetTurnOff != 0 {
		if it.opts.GroupedLegacyOff {
			req.Off = cmd.SetTurnOn + GroupedOffset
		} else {
			req.Off = cmd.SetTurnOff + GroupedOffset
		}
	}
	return req
}

func extract(doc map[string]any) (Command, error) {
	var cmd Command

	id, err := commandID(doc["commandId"])
	if err != nil {
		return cmd, err
	}
	cmd.CommandID = id

	raw, ok := doc["cmd"]
	if !ok || raw == nil {
		return cmd, nil
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return cmd, fmt.Errorf("%w: cmd is %T, want object", ErrInvalidField, raw)
	}

	if cmd.SetTurnOn, err = slot(fields, "setTurnOn"); err != nil {
		return cmd, err
	}
	if cmd.SetTurnOff, err = slot(fields, "setTurnOff"); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func commandID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", nil
	case string:
		return id, nil
	case json.Number:
		return id.String(), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: commandId is %T", ErrInvalidField, v)
	}
}

// slot reads a non-negative integer field; missing means 0.
func slot(fields map[string]any, name string) (int, error) {
	n, err := toInt(fields[name])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidField, name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s: negative slot %d", ErrInvalidField, name, n)
	}
	return n, nil
}

var errNotInteger = errors.New("not an integer")

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 32); err == nil {
			return int(i), nil
		}
		// 1.0 and 1e0 are whole numbers too; CBOR hands them over as float64.
		f, err := n.Float64()
		if err != nil {
			return 0, errNotInteger
		}
		return toInt(f)
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, errNotInteger
		}
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, errNotInteger
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, errNotInteger
		}
		return int(n), nil
	default:
		return 0, errNotInteger
	}
}
