package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"browser-mcp/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator turns raw tool arguments into entity.ToolArgs. It reports the first
// violation it finds and never repairs input.
type Validator struct {
	defaultTimeout int
}

func NewValidator(defaultTimeout time.Duration) *Validator {
	return &Validator{defaultTimeout: entity.TimeoutSeconds(defaultTimeout)}
}

func (v *Validator) Validate(name entity.ToolName, raw json.RawMessage) (entity.ToolArgs, *entity.ToolError) {
	set, err := parseArgs(raw)
	if err != nil {
		return nil, invalid(name, err)
	}

	var args entity.ToolArgs
	switch name {
	case entity.ToolNavigateTo:
		args, err = v.navigate(set)
	case entity.ToolGetPageContent:
		args, err = v.pageContent(set)
	case entity.ToolClickElement:
		args, err = v.click(set)
	case entity.ToolFillForm:
		args, err = v.fillForm(set)
	case entity.ToolTakeScreenshot:
		args, err = v.screenshot(set)
	case entity.ToolExecuteJavaScript:
		args, err = v.script(set)
	default:
		return nil, entity.NewToolError(entity.ErrorUnknownTool, string(name), "unknown tool %q", name)
	}
	if err != nil {
		return nil, invalid(name, err)
	}
	return args, nil
}

func invalid(name entity.ToolName, err error) *entity.ToolError {
	return entity.NewToolError(entity.ErrorValidation, string(name), "%s", err.Error())
}

func (v *Validator) navigate(set *argSet) (entity.ToolArgs, error) {
	rawURL, err := set.requiredString("url")
	if err != nil {
		return nil, err
	}
	target, err := checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	waitFor, err := set.selector("wait_for", false)
	if err != nil {
		return nil, err
	}
	timeout, err := set.timeout("timeout", v.defaultTimeout)
	if err != nil {
		return nil, err
	}
	return entity.NavigateArgs{URL: target, WaitFor: waitFor, TimeoutSeconds: timeout}, nil
}

func (v *Validator) pageContent(set *argSet) (entity.ToolArgs, error) {
	selector, err := set.selector("selector", false)
	if err != nil {
		return nil, err
	}
	includeLinks, err := set.boolean("include_links", false)
	if err != nil {
		return nil, err
	}
	return entity.PageContentArgs{Selector: selector, IncludeLinks: includeLinks, TimeoutSeconds: v.defaultTimeout}, nil
}

func (v *Validator) click(set *argSet) (entity.ToolArgs, error) {
	selector, err := set.selector("selector", true)
	if err != nil {
		return nil, err
	}
	timeout, err := set.timeout("timeout", v.defaultTimeout)
	if err != nil {
		return nil, err
	}
	return entity.ClickArgs{Selector: selector, TimeoutSeconds: timeout}, nil
}

func (v *Validator) fillForm(set *argSet) (entity.ToolArgs, error) {
	fields, err := set.fields("fields")
	if err != nil {
		return nil, err
	}
	submit, err := set.boolean("submit", false)
	if err != nil {
		return nil, err
	}
	return entity.FillFormArgs{Fields: fields, Submit: submit, TimeoutSeconds: v.defaultTimeout}, nil
}

func (v *Validator) screenshot(set *argSet) (entity.ToolArgs, error) {
	fullPage, err := set.boolean("full_page", false)
	if err != nil {
		return nil, err
	}
	selector, err := set.selector("selector", false)
	if err != nil {
		return nil, err
	}
	return entity.ScreenshotArgs{FullPage: fullPage, Selector: selector, TimeoutSeconds: v.defaultTimeout}, nil
}

func (v *Validator) script(set *argSet) (entity.ToolArgs, error) {
	code, err := set.requiredString("code")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New(`argument "code" must not be empty`)
	}
	returnValue, err := set.boolean("return_value", true)
	if err != nil {
		return nil, err
	}
	return entity.ScriptArgs{Code: code, ReturnValue: returnValue, TimeoutSeconds: v.defaultTimeout}, nil
}

// argSet holds the top level keys of an argument object with their raw values.
type argSet struct {
	values map[string][]byte
}

func parseArgs(raw []byte) (*argSet, error) {
	set := &argSet{values: make(map[string][]byte)}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return set, nil
	}

	iter := jsoniter.ParseBytes(jsonAPI, trimmed)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, errors.New("arguments must be a JSON object")
	}
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		set.values[key] = append([]byte(nil), it.SkipAndReturnBytes()...)
		return true
	})
	if iter.Error != nil {
		return nil, fmt.Errorf("malformed arguments: %v", iter.Error)
	}
	return set, nil
}

// lookup returns an iterator positioned at the value of key. A JSON null is
// treated the same as a missing key.
func (s *argSet) lookup(key string) (*jsoniter.Iterator, bool) {
	raw, ok := s.values[key]
	if !ok {
		return nil, false
	}
	it := jsoniter.ParseBytes(jsonAPI, raw)
	if it.WhatIsNext() == jsoniter.NilValue {
		return nil, false
	}
	return it, true
}

func (s *argSet) requiredString(key string) (string, error) {
	it, ok := s.lookup(key)
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return readString(it, key)
}

func (s *argSet) selector(key string, required bool) (string, error) {
	it, ok := s.lookup(key)
	if !ok {
		if required {
			return "", fmt.Errorf("missing required argument %q", key)
		}
		return "", nil
	}
	sel, err := readString(it, key)
	if err != nil {
		return "", err
	}
	if err := checkSelector(key, sel); err != nil {
		return "", err
	}
	return strings.TrimSpace(sel), nil
}

func (s *argSet) boolean(key string, def bool) (bool, error) {
	it, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	if it.WhatIsNext() != jsoniter.BoolValue {
		return false, fmt.Errorf("argument %q must be a boolean", key)
	}
	return it.ReadBool(), nil
}

func (s *argSet) timeout(key string, def int) (int, error) {
	it, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	if it.WhatIsNext() != jsoniter.NumberValue {
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
	n, err := toInt(it.ReadNumber())
	if err != nil {
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
	if n < entity.MinTimeoutSeconds || n > entity.MaxTimeoutSeconds {
		return 0, fmt.Errorf("argument %q must be between %d and %d seconds, got %d",
			key, entity.MinTimeoutSeconds, entity.MaxTimeoutSeconds, n)
	}
	return n, nil
}

// fields reads a selector->value mapping in document order.
func (s *argSet) fields(key string) ([]entity.FormField, error) {
	it, ok := s.lookup(key)
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	if it.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("argument %q must be an object mapping selectors to values", key)
	}

	var (
		fields []entity.FormField
		seen   = make(map[string]bool)
		failed error
	)
	it.ReadObjectCB(func(it *jsoniter.Iterator, sel string) bool {
		if err := checkSelector(key, sel); err != nil {
			failed = fmt.Errorf("argument %q has an invalid selector key: %w", key, err)
			return false
		}
		sel = strings.TrimSpace(sel)
		if seen[sel] {
			failed = fmt.Errorf("argument %q lists selector %q more than once", key, sel)
			return false
		}
		seen[sel] = true

		var value string
		switch it.WhatIsNext() {
		case jsoniter.StringValue:
			value = it.ReadString()
		case jsoniter.NumberValue:
			value = it.ReadNumber().String()
		case jsoniter.BoolValue:
			value = strconv.FormatBool(it.ReadBool())
		default:
			failed = fmt.Errorf("value for selector %q in %q must be a string", sel, key)
			return false
		}
		fields = append(fields, entity.FormField{Selector: sel, Value: value})
		return true
	})
	if failed != nil {
		return nil, failed
	}
	if it.Error != nil {
		return nil, fmt.Errorf("argument %q is malformed: %v", key, it.Error)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("argument %q must contain at least one field", key)
	}
	return fields, nil
}

func readString(it *jsoniter.Iterator, key string) (string, error) {
	if it.WhatIsNext() != jsoniter.StringValue {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return it.ReadString(), nil
}

func toInt(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%s is not an integer", n)
	}
	return int(f), nil
}

func checkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New(`argument "url" must not be empty`)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf(`argument "url" is not a valid URL: %v`, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf(`argument "url" must be an absolute URL, got %q`, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf(`argument "url" must use http or https, got %q`, u.Scheme)
	}
	return raw, nil
}

func checkSelector(key, sel string) error {
	if strings.TrimSpace(sel) == "" {
		return fmt.Errorf("argument %q must be a non-empty selector", key)
	}
	if strings.Contains(sel, "<") {
		return fmt.Errorf("argument %q is not a valid selector: %q", key, sel)
	}
	if strings.Contains(strings.ToLower(sel), "javascript:") {
		return fmt.Errorf("argument %q must not contain a javascript: URL", key)
	}
	return nil
}
