package service

import (
	"fmt"
	"sort"
	"strings"
)

// 内置指令
const (
	CmdHelp       = "!help"
	CmdNewTopic   = "!新話題"
	CmdQueryModel = "!model查詢"
	CmdDraw       = "!製作圖片"
)

// 回复文案
const (
	msgNewTopic     = "開啟新話題囉！"
	msgCurrentModel = "目前使用: %s"
	msgDrawPrompt   = "告訴我你想要畫什麼？"
	msgSwitched     = "已經切換到： %s"
	msgDrawing      = "圖片繪製中，請稍等..."
	msgDrawFailed   = "圖片製作失敗"
	msgTimeout      = "回應逾時，請稍後再試"
	msgInternal     = "系統發生錯誤，請稍後再試"
	msgUnsupported  = "目前只支援文字與圖片訊息"
)

type commandKind int

const (
	commandNone commandKind = iota
	commandHelp
	commandNewTopic
	commandQueryModel
	commandSwitchModel
)

type command struct {
	kind  commandKind
	model string // commandSwitchModel 的目标模型
}

// parseCommand 指令需完整匹配，别名不区分大小写
func (s *ChatService) parseCommand(text string) command {
	text = strings.TrimSpace(text)
	switch text {
	case CmdHelp:
		return command{kind: commandHelp}
	case CmdNewTopic:
		return command{kind: commandNewTopic}
	case CmdQueryModel:
		return command{kind: commandQueryModel}
	case CmdDraw:
		return command{kind: commandSwitchModel, model: s.opts.ImageModel}
	}
	if m, ok := s.opts.Aliases[strings.ToLower(text)]; ok {
		return command{kind: commandSwitchModel, model: m}
	}
	return command{kind: commandNone}
}

// helpText 列出所有可用指令
func (s *ChatService) helpText() string {
	var b strings.Builder
	b.WriteString("指令列表：\n")
	fmt.Fprintf(&b, "%s - 顯示本說明\n", CmdHelp)
	fmt.Fprintf(&b, "%s - 清除對話紀錄，開啟新話題\n", CmdNewTopic)
	fmt.Fprintf(&b, "%s - 查詢目前使用的模型\n", CmdQueryModel)
	fmt.Fprintf(&b, "%s - 切換到繪圖模式\n", CmdDraw)

	aliases := make([]string, 0, len(s.opts.Aliases))
	for alias := range s.opts.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fmt.Fprintf(&b, "%s - 切換到 %s\n", alias, s.opts.Aliases[alias])
	}
	b.WriteString("直接傳送圖片可以請我描述圖片內容")
	return b.String()
}
