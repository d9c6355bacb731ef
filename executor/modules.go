/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\modules.go
 * @Description: require() 白名单模块：math/json/random/time/strings/base64/crypto
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/kamalyes/go-toolbox/pkg/random"
)

// sleepSlice time.sleep 的分片步长，保证打断标记能被及时观察到
const sleepSlice = 50 * time.Millisecond

// loadModule 按名称构建白名单模块，未知模块返回 false
func (sb *sandbox) loadModule(name string) (goja.Value, bool) {
	switch name {
	case "math":
		return sb.mathModule(), true
	case "json":
		return sb.jsonModule(), true
	case "random":
		return sb.randomModule(), true
	case "time":
		return sb.timeModule(), true
	case "strings":
		return sb.stringsModule(), true
	case "base64":
		return sb.base64Module(), true
	case "crypto":
		return sb.cryptoModule(), true
	default:
		return nil, false
	}
}

func (sb *sandbox) mathModule() goja.Value {
	m := sb.vm.NewObject()
	unary := func(name string, fn func(float64) float64) {
		m.Set(name, func(call goja.FunctionCall) goja.Value {
			return sb.vm.ToValue(fn(call.Argument(0).ToFloat()))
		})
	}
	unary("sqrt", math.Sqrt)
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)
	unary("log", math.Log)
	unary("exp", math.Exp)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	m.Set("pow", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(math.Pow(call.Argument(0).ToFloat(), call.Argument(1).ToFloat()))
	})
	m.Set("pi", math.Pi)
	m.Set("e", math.E)
	return m
}

func (sb *sandbox) jsonModule() goja.Value {
	m := sb.vm.NewObject()
	m.Set("dumps", func(call goja.FunctionCall) goja.Value {
		b, err := json.Marshal(call.Argument(0).Export())
		if err != nil {
			panic(sb.vm.NewGoError(fmt.Errorf("json.dumps: %w", err)))
		}
		return sb.vm.ToValue(string(b))
	})
	m.Set("loads", func(call goja.FunctionCall) goja.Value {
		var out any
		if err := json.Unmarshal([]byte(call.Argument(0).String()), &out); err != nil {
			panic(sb.vm.NewGoError(fmt.Errorf("json.loads: %w", err)))
		}
		return sb.vm.ToValue(out)
	})
	return m
}

func (sb *sandbox) randomModule() goja.Value {
	m := sb.vm.NewObject()
	m.Set("random", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(random.RandFloat(0, 1))
	})
	// randint 闭区间 [low, high]
	m.Set("randint", func(call goja.FunctionCall) goja.Value {
		low := int(call.Argument(0).ToInteger())
		high := int(call.Argument(1).ToInteger())
		if low > high {
			low, high = high, low
		}
		return sb.vm.ToValue(random.RandInt(low, high))
	})
	m.Set("choice", func(call goja.FunctionCall) goja.Value {
		arr, ok := call.Argument(0).Export().([]interface{})
		if !ok || len(arr) == 0 {
			panic(sb.vm.NewGoError(fmt.Errorf("random.choice needs a non-empty array")))
		}
		return sb.vm.ToValue(arr[random.RandInt(0, len(arr)-1)])
	})
	m.Set("rand_string", func(call goja.FunctionCall) goja.Value {
		length := int(call.Argument(0).ToInteger())
		if length <= 0 {
			return sb.vm.ToValue("")
		}
		return sb.vm.ToValue(random.RandString(length, random.LOWERCASE|random.CAPITAL|random.NUMBER))
	})
	return m
}

func (sb *sandbox) timeModule() goja.Value {
	m := sb.vm.NewObject()
	m.Set("time", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(float64(time.Now().UnixNano()) / float64(time.Second))
	})
	// sleep 分片休眠，虚拟机被打断后不再硬等剩余时长
	m.Set("sleep", func(call goja.FunctionCall) goja.Value {
		seconds := call.Argument(0).ToFloat()
		if math.IsNaN(seconds) || seconds <= 0 {
			return goja.Undefined()
		}
		deadline := time.Now().Add(time.Duration(seconds * float64(time.Second)))
		for time.Now().Before(deadline) {
			if sb.halted.Load() {
				break
			}
			remain := time.Until(deadline)
			if remain > sleepSlice {
				remain = sleepSlice
			}
			time.Sleep(remain)
		}
		return goja.Undefined()
	})
	return m
}

func (sb *sandbox) stringsModule() goja.Value {
	m := sb.vm.NewObject()
	m.Set("upper", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.ToUpper(call.Argument(0).String()))
	})
	m.Set("lower", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.ToLower(call.Argument(0).String()))
	})
	m.Set("trim", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.TrimSpace(call.Argument(0).String()))
	})
	m.Set("split", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.Split(call.Argument(0).String(), call.Argument(1).String()))
	})
	m.Set("join", func(call goja.FunctionCall) goja.Value {
		arr, ok := call.Argument(0).Export().([]interface{})
		if !ok {
			panic(sb.vm.NewGoError(fmt.Errorf("strings.join needs an array")))
		}
		parts := make([]string, len(arr))
		for i, v := range arr {
			parts[i] = fmt.Sprintf("%v", v)
		}
		return sb.vm.ToValue(strings.Join(parts, call.Argument(1).String()))
	})
	m.Set("contains", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.Contains(call.Argument(0).String(), call.Argument(1).String()))
	})
	m.Set("replace", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.ReplaceAll(call.Argument(0).String(), call.Argument(1).String(), call.Argument(2).String()))
	})
	m.Set("startswith", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.HasPrefix(call.Argument(0).String(), call.Argument(1).String()))
	})
	m.Set("endswith", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(strings.HasSuffix(call.Argument(0).String(), call.Argument(1).String()))
	})
	return m
}

func (sb *sandbox) base64Module() goja.Value {
	m := sb.vm.NewObject()
	m.Set("b64encode", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(base64.StdEncoding.EncodeToString([]byte(call.Argument(0).String())))
	})
	m.Set("b64decode", func(call goja.FunctionCall) goja.Value {
		raw, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(sb.vm.NewGoError(fmt.Errorf("base64.b64decode: %w", err)))
		}
		return sb.vm.ToValue(string(raw))
	})
	return m
}

func (sb *sandbox) cryptoModule() goja.Value {
	m := sb.vm.NewObject()
	m.Set("md5", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(hexDigest(md5.New(), call.Argument(0).String()))
	})
	m.Set("sha1", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(hexDigest(sha1.New(), call.Argument(0).String()))
	})
	m.Set("sha256", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(hexDigest(sha256.New(), call.Argument(0).String()))
	})
	m.Set("sha512", func(call goja.FunctionCall) goja.Value {
		return sb.vm.ToValue(hexDigest(sha512.New(), call.Argument(0).String()))
	})
	return m
}

func hexDigest(h hash.Hash, s string) string {
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
