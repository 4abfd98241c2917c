package interpreter

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// builtinFunc is a function reachable from interpreted code, either a bare
// name (print, len) or qualified as pkg.Name (strings.ToUpper).
type builtinFunc func(args []any) (any, error)

// allowedPackages maps a package identifier permitted in interpreted code
// (the left side of a SelectorExpr used as a call) to the set of functions
// exposed under it. Only these functions are reachable — the interpreter
// never holds a live reference to the real package, only to these closures
// — so an interpreted program cannot reach os.Exec, net, reflect, unsafe or
// any other capability outside this table regardless of what identifiers it
// spells out.
var allowedPackages = map[string]map[string]builtinFunc{
	"strings": {
		"ToUpper":    wrap1s(strings.ToUpper),
		"ToLower":    wrap1s(strings.ToLower),
		"TrimSpace":  wrap1s(strings.TrimSpace),
		"Contains":   wrap2s(func(s, sub string) bool { return strings.Contains(s, sub) }),
		"HasPrefix":  wrap2s(func(s, p string) bool { return strings.HasPrefix(s, p) }),
		"HasSuffix":  wrap2s(func(s, p string) bool { return strings.HasSuffix(s, p) }),
		"Split":      biSplit,
		"Join":       biJoin,
		"Replace":    biReplace,
		"ReplaceAll": wrap3s(strings.ReplaceAll),
		"Fields":     biFields,
		"Repeat":     biRepeat,
		"Index":      wrap2sInt(strings.Index),
		"Count":      wrap2sInt(strings.Count),
		"Title":      wrap1s(strings.Title), //nolint:staticcheck // kept for parity with interpreted-code expectations
	},
	"strconv": {
		"Itoa":       biItoa,
		"Atoi":       biAtoi,
		"FormatFloat": biFormatFloat,
		"ParseFloat":  biParseFloat,
	},
	"math": {
		"Abs":   wrap1f(math.Abs),
		"Max":   wrap2f(math.Max),
		"Min":   wrap2f(math.Min),
		"Sqrt":  wrap1f(math.Sqrt),
		"Pow":   wrap2f(math.Pow),
		"Floor": wrap1f(math.Floor),
		"Ceil":  wrap1f(math.Ceil),
		"Round": wrap1f(math.Round),
	},
	"sort": {
		"Strings": biSortStrings,
		"Float64s": biSortFloat64s,
	},
	"json": {
		"Marshal":   biJSONMarshal,
		"Unmarshal": biJSONUnmarshal,
	},
	"url": {
		"QueryEscape":   wrap1s(url.QueryEscape),
		"QueryUnescape": biURLQueryUnescape,
		"Parse":         biURLParse,
	},
	"path": {
		"Join": biPathJoin,
		"Base": wrap1s(path.Base),
		"Dir":  wrap1s(path.Dir),
		"Ext":  wrap1s(path.Ext),
	},
	"time": {
		"Now":      biTimeNow,
		"Since":    biTimeSince,
		"Unix":     biTimeUnix,
	},
}

// bareBuiltins are identifiers callable without a package qualifier.
var bareBuiltins = map[string]builtinFunc{
	"len":     biLen,
	"print":   nil, // special-cased by the evaluator (needs access to the output buffer)
	"append":  biAppend,
	"string":  biToString,
	"int":     biToInt,
	"float64": biToFloat,
}

func wrap1s(f func(string) string) builtinFunc {
	return func(args []any) (any, error) {
		s, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

func wrap2s(f func(string, string) bool) builtinFunc {
	return func(args []any) (any, error) {
		a, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argString(args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func wrap3s(f func(string, string, string) string) builtinFunc {
	return func(args []any) (any, error) {
		a, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argString(args, 1)
		if err != nil {
			return nil, err
		}
		c, err := argString(args, 2)
		if err != nil {
			return nil, err
		}
		return f(a, b, c), nil
	}
}

func wrap2sInt(f func(string, string) int) builtinFunc {
	return func(args []any) (any, error) {
		a, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argString(args, 1)
		if err != nil {
			return nil, err
		}
		return float64(f(a, b)), nil
	}
}

func wrap1f(f func(float64) float64) builtinFunc {
	return func(args []any) (any, error) {
		v, err := argFloat(args, 0)
		if err != nil {
			return nil, err
		}
		return f(v), nil
	}
}

func wrap2f(f func(float64, float64) float64) builtinFunc {
	return func(args []any) (any, error) {
		a, err := argFloat(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argFloat(args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func argString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("interpreter: missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("interpreter: argument %d is not a string", i)
	}
	return s, nil
}

func argFloat(args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("interpreter: missing argument %d", i)
	}
	return toFloat(args[i])
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("interpreter: value %v is not numeric", v)
	}
}

func biSplit(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	sep, err := argString(args, 1)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func biFields(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	parts := strings.Fields(s)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func biJoin(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("interpreter: join requires 2 arguments")
	}
	items, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("interpreter: join expects an array as the first argument")
	}
	sep, err := argString(args, 1)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, sep), nil
}

func biReplace(args []any) (any, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("interpreter: Replace requires 4 arguments")
	}
	s, _ := argString(args, 0)
	old, _ := argString(args, 1)
	newS, _ := argString(args, 2)
	n, err := toFloat(args[3])
	if err != nil {
		return nil, err
	}
	return strings.Replace(s, old, newS, int(n)), nil
}

func biRepeat(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	n, err := argFloat(args, 1)
	if err != nil {
		return nil, err
	}
	return strings.Repeat(s, int(n)), nil
}

func biItoa(args []any) (any, error) {
	n, err := argFloat(args, 0)
	if err != nil {
		return nil, err
	}
	return strconv.Itoa(int(n)), nil
}

func biAtoi(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("interpreter: Atoi: %w", err)
	}
	return float64(n), nil
}

func biFormatFloat(args []any) (any, error) {
	f, err := argFloat(args, 0)
	if err != nil {
		return nil, err
	}
	prec := -1
	if len(args) > 1 {
		p, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		prec = int(p)
	}
	return strconv.FormatFloat(f, 'f', prec, 64), nil
}

func biParseFloat(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("interpreter: ParseFloat: %w", err)
	}
	return f, nil
}

func biSortStrings(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("interpreter: sort.Strings requires an argument")
	}
	items, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("interpreter: sort.Strings expects an array")
	}
	out := make([]string, len(items))
	for i, v := range items {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("interpreter: sort.Strings: non-string element")
		}
		out[i] = s
	}
	sort.Strings(out)
	result := make([]any, len(out))
	for i, s := range out {
		result[i] = s
	}
	return result, nil
}

func biSortFloat64s(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("interpreter: sort.Float64s requires an argument")
	}
	items, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("interpreter: sort.Float64s expects an array")
	}
	out := make([]float64, len(items))
	for i, v := range items {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	sort.Float64s(out)
	result := make([]any, len(out))
	for i, f := range out {
		result[i] = f
	}
	return result, nil
}

func biJSONMarshal(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("interpreter: json.Marshal requires an argument")
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return nil, fmt.Errorf("interpreter: json.Marshal: %w", err)
	}
	return string(data), nil
}

func biJSONUnmarshal(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("interpreter: json.Unmarshal: %w", err)
	}
	return v, nil
}

func biURLQueryUnescape(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	out, err := url.QueryUnescape(s)
	if err != nil {
		return nil, fmt.Errorf("interpreter: url.QueryUnescape: %w", err)
	}
	return out, nil
}

func biURLParse(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("interpreter: url.Parse: %w", err)
	}
	return map[string]any{
		"scheme": u.Scheme,
		"host":   u.Host,
		"path":   u.Path,
		"query":  u.RawQuery,
	}, nil
}

func biPathJoin(args []any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("interpreter: path.Join: non-string argument %d", i)
		}
		parts[i] = s
	}
	return path.Join(parts...), nil
}

func biTimeNow(args []any) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func biTimeSince(args []any) (any, error) {
	s, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("interpreter: time.Since: %w", err)
	}
	return time.Since(t).Seconds(), nil
}

func biTimeUnix(args []any) (any, error) {
	return float64(time.Now().Unix()), nil
}

func biLen(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("interpreter: len requires an argument")
	}
	switch v := args[0].(type) {
	case string:
		return float64(len(v)), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	default:
		return nil, fmt.Errorf("interpreter: len: unsupported type %T", v)
	}
}

func biAppend(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("interpreter: append requires an argument")
	}
	slice, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("interpreter: append: first argument is not an array")
	}
	out := append([]any{}, slice...)
	out = append(out, args[1:]...)
	return out, nil
}

func biToString(args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return fmt.Sprint(args[0]), nil
}

func biToInt(args []any) (any, error) {
	f, err := argFloat(args, 0)
	if err != nil {
		return nil, err
	}
	return float64(int64(f)), nil
}

func biToFloat(args []any) (any, error) {
	return argFloat(args, 0)
}
