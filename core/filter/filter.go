// Package filter 把用户的音效选择编译为有序的 ffmpeg 滤镜链
//
// 音效不满足交换律，无论用户以什么顺序开关，滤镜链总按固定顺序生成。
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ID 滤镜标识，取值与 HTTP 接口一致
type ID string

const (
	SubCut    ID = "subcut"
	SubBoost  ID = "subboost"
	Bass      ID = "bass"
	Echo      ID = "echo"
	Normalize ID = "normalize"
	Reverb    ID = "reverb"
	Nightcore ID = "nightcore"
)

const (
	MinBassGain     = -20
	MaxBassGain     = 20
	DefaultBassGain = 10

	// 接口收到 bass 但增益不可用时的默认值
	queryBassGain = 6

	defaultSampleRate = 44100
)

// canonicalOrder 滤镜应用顺序
var canonicalOrder = []ID{SubCut, SubBoost, Bass, Echo, Normalize, Reverb, Nightcore}

// Info 客户端滤镜面板的滤镜描述
type Info struct {
	ID    ID     `json:"id"`
	Label string `json:"label"`
}

var catalog = []Info{
	{ID: Bass, Label: "Bass Boost"},
	{ID: SubBoost, Label: "Sub Boost"},
	{ID: SubCut, Label: "Sub Cut (Reduce)"},
	{ID: Echo, Label: "Echo"},
	{ID: Normalize, Label: "Normalize"},
	{ID: Reverb, Label: "Reverb"},
	{ID: Nightcore, Label: "Nightcore"},
}

// Catalog 按展示顺序返回所有滤镜
func Catalog() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// Known id 是否为可编译的滤镜
func Known(id ID) bool {
	return lo.Contains(canonicalOrder, id)
}

// ClampBassGain 把增益（dB）限制在 [MinBassGain, MaxBassGain]
func ClampBassGain(gain int) int {
	return lo.Clamp(gain, MinBassGain, MaxBassGain)
}

// Op 编译后滤镜链中的一步
type Op struct {
	ID   ID     `json:"id"`
	Expr string `json:"expr"` // ffmpeg 滤镜图片段
}

// Compile 按固定顺序把选择编译为 ops，忽略未知 id
func Compile(sel Selection) []Op {
	return CompileAt(sel, defaultSampleRate)
}

// CompileAt 指定输出采样率的 Compile，nightcore 重采样需要
func CompileAt(sel Selection, sampleRate int) []Op {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	ops := make([]Op, 0, len(sel.ids))
	for _, id := range canonicalOrder {
		if !sel.Has(id) {
			continue
		}
		ops = append(ops, Op{ID: id, Expr: expr(id, sel.BassGain(), sampleRate)})
	}
	return ops
}

func expr(id ID, bassGain, sampleRate int) string {
	switch id {
	case SubCut:
		return "asubcut"
	case SubBoost:
		return "asubboost"
	case Bass:
		return fmt.Sprintf("bass=g=%d", ClampBassGain(bassGain))
	case Echo:
		return "aecho=0.8:0.88:60:0.4"
	case Normalize:
		return "dynaudnorm"
	case Reverb:
		return "areverse,aphaser,areverse"
	case Nightcore:
		return fmt.Sprintf("asetrate=%d*1.25,aresample=%d", sampleRate, sampleRate)
	}
	return ""
}

// Graph 把 ops 拼成一个 -af 参数，空 ops 返回 ""
func Graph(ops []Op) string {
	return strings.Join(lo.Map(ops, func(op Op, _ int) string { return op.Expr }), ",")
}

// IDs 按顺序返回 ops 的 id
func IDs(ops []Op) []ID {
	return lo.Map(ops, func(op Op, _ int) ID { return op.ID })
}

// ParseQuery 解析接口格式：逗号分隔的 id 列表加低音增益
//
// 增益缺失或不是数字时使用接口默认值。
func ParseQuery(filters, bassBoost string) Selection {
	var ids []ID
	for _, raw := range strings.Split(filters, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			ids = append(ids, ID(raw))
		}
	}

	gain := queryBassGain
	if g, err := strconv.Atoi(strings.TrimSpace(bassBoost)); err == nil && g != 0 {
		gain = g
	}

	sel := NewSelection(ids...)
	sel.SetBassGain(gain)
	return sel
}

// Query 把选择渲染为接口格式，未选 bass 时 bassBoost 为空
func Query(sel Selection) (filters, bassBoost string) {
	list := sel.List()
	if len(list) == 0 {
		return "", ""
	}
	filters = strings.Join(lo.Map(list, func(id ID, _ int) string { return string(id) }), ",")
	if sel.Has(Bass) {
		bassBoost = strconv.Itoa(sel.BassGain())
	}
	return filters, bassBoost
}
