package interactive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ucbridge/ucbridge-go/pkg/learn"
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
)

// parseMapArgs parses
//
//	<channel> <source> <device-id> <path> <kind> [curve=C] [min=N] [max=N] [invert] [bidir] [label=L]
//
// Channels are 1-16 as printed on hardware.
func parseMapArgs(args []string) (mapping.ParameterMapping, error) {
	if len(args) < 5 {
		return mapping.ParameterMapping{}, fmt.Errorf("usage: map <channel> <source> <device-id> <path> <kind> [options]")
	}

	channel, err := parseChannel(args[0])
	if err != nil {
		return mapping.ParameterMapping{}, err
	}
	src, err := mapping.ParseSource(args[1])
	if err != nil {
		return mapping.ParameterMapping{}, err
	}
	kind, err := mapping.ParseParamKind(args[4])
	if err != nil {
		return mapping.ParameterMapping{}, err
	}

	m := mapping.New(uint8(channel), src, mapping.Target{DeviceID: args[2], Path: args[3]}, kind)
	for _, opt := range args[5:] {
		key, value, _ := strings.Cut(opt, "=")
		switch strings.ToLower(key) {
		case "curve":
			if m.Curve, err = mapping.ParseCurve(value); err != nil {
				return m, err
			}
		case "min":
			if m.Min, err = strconv.ParseFloat(value, 64); err != nil {
				return m, fmt.Errorf("min: %w", err)
			}
		case "max":
			if m.Max, err = strconv.ParseFloat(value, 64); err != nil {
				return m, fmt.Errorf("max: %w", err)
			}
		case "invert":
			m.Invert = true
		case "bidir", "bidirectional":
			m.Bidirectional = true
		case "label":
			m.Label = value
		default:
			return m, fmt.Errorf("unknown option %q", opt)
		}
	}
	return m, m.Validate()
}

// parseLearnArgs parses
//
//	<device-id> <path> <kind> [channel|any] [bidir] [label=L]
func parseLearnArgs(args []string) (learn.Request, error) {
	if len(args) < 3 {
		return learn.Request{}, fmt.Errorf("usage: learn <device-id> <path> <kind> [channel|any] [bidir]")
	}
	kind, err := mapping.ParseParamKind(args[2])
	if err != nil {
		return learn.Request{}, err
	}

	req := learn.Request{DeviceID: args[0], Path: args[1], Kind: kind, Channel: learn.AnyChannel}
	for _, opt := range args[3:] {
		key, value, _ := strings.Cut(opt, "=")
		switch strings.ToLower(key) {
		case "any":
			req.Channel = learn.AnyChannel
		case "bidir", "bidirectional":
			req.Bidirectional = true
		case "label":
			req.Label = value
		default:
			ch, err := parseChannel(opt)
			if err != nil {
				return req, fmt.Errorf("unknown option %q", opt)
			}
			req.Channel = ch
		}
	}
	return req, nil
}

// parseChannel converts a 1-16 channel to its zero-based form.
func parseChannel(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 16 {
		return 0, fmt.Errorf("channel %q: use 1-16", s)
	}
	return n - 1, nil
}

// resolveID expands a unique prefix to a full id.
func resolveID(partial string, ids []string) (string, error) {
	var match string
	for _, id := range ids {
		if id == partial {
			return id, nil
		}
		if strings.HasPrefix(id, partial) {
			if match != "" {
				return "", fmt.Errorf("%q is ambiguous", partial)
			}
			match = id
		}
	}
	if match == "" {
		return partial, nil
	}
	return match, nil
}
