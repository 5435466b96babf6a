package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/schedule"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/internal/watch"
	"github.com/user/gitwatch/pkg/logger"
)

// Handlers manages command handling for the bot.
type Handlers struct {
	api       *tgbotapi.BotAPI
	botID     string
	manager   *watch.Manager
	scheduler *schedule.Scheduler
}

// NewHandlers creates a new handlers instance. The bot API and identity
// are filled in by NewBot; the scheduler is attached once it exists.
func NewHandlers(manager *watch.Manager) *Handlers {
	return &Handlers{manager: manager}
}

// AttachScheduler wires in the scheduler. It must be called before the
// bot starts receiving updates.
func (h *Handlers) AttachScheduler(scheduler *schedule.Scheduler) {
	h.scheduler = scheduler
}

// HandleCommand routes commands to appropriate handlers.
func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	args := msg.CommandArguments()

	logger.Debug().
		Str("command", command).
		Str("args", args).
		Int64("chat_id", msg.Chat.ID).
		Msg("Received command")

	switch command {
	case "start", "help":
		h.handleHelp(msg)
	case "subscribe", "sub":
		h.handleSubscribe(ctx, msg, args)
	case "unsubscribe", "unsub":
		h.handleUnsubscribe(msg, args)
	case "list":
		h.handleList(msg)
	case "pushnow":
		h.handlePushNow(ctx, msg)
	default:
		h.sendReply(msg.Chat.ID, "未知命令。使用 /help 查看可用命令。")
	}
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	text := `🤖 *Git 仓库监控机器人*

支持 GitHub / Gitee / GitCode / Cnb / Codeberg 仓库的提交与议题推送。

*命令：*
` + "`/subscribe [平台:]owner/repo[:分支] [push,issue]`" + ` 订阅仓库
` + "`/unsubscribe [平台:]owner/repo[:分支] [push,issue]`" + ` 取消订阅
` + "`/list`" + ` 查看当前订阅
` + "`/pushnow`" + ` 立即推送当前仓库状态

平台缺省为 github，事件类型缺省为 push。`
	h.sendReply(msg.Chat.ID, text)
}

func (h *Handlers) handleSubscribe(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, err := parseTarget(args)
	if err != nil {
		h.sendReply(msg.Chat.ID, err.Error())
		return
	}

	result, err := h.manager.Subscribe(ctx, watch.SubscribeRequest{
		Platform: target.platform,
		Owner:    target.owner,
		Repo:     target.repo,
		Branch:   target.branch,
		Kinds:    target.kinds,
		Dest:     h.destination(msg),
	})
	if err != nil {
		h.sendReply(msg.Chat.ID, "订阅失败: "+err.Error())
		return
	}

	if result.AlreadyWatching {
		h.sendReply(msg.Chat.ID, fmt.Sprintf("仓库 %s/%s 的推送订阅已存在, 平台: %s, 分支: %s",
			target.owner, target.repo, target.platform, result.Branch))
		return
	}
	reply := fmt.Sprintf("✅ 订阅成功, 平台: %s, 仓库: %s/%s, 事件: %s",
		target.platform, target.owner, target.repo, joinKinds(result.Kinds))
	if result.Branch != "" {
		reply += ", 分支: " + result.Branch
	}
	h.sendReply(msg.Chat.ID, reply)
}

func (h *Handlers) handleUnsubscribe(msg *tgbotapi.Message, args string) {
	target, err := parseTarget(args)
	if err != nil {
		h.sendReply(msg.Chat.ID, err.Error())
		return
	}

	err = h.manager.Unsubscribe(watch.UnsubscribeRequest{
		Platform: target.platform,
		Owner:    target.owner,
		Repo:     target.repo,
		Branch:   target.branch,
		Kinds:    target.kinds,
		Dest:     h.destination(msg),
	})
	if err != nil {
		h.sendReply(msg.Chat.ID, "取消订阅失败: "+err.Error())
		return
	}
	h.sendReply(msg.Chat.ID, fmt.Sprintf("✅ 已取消订阅, 平台: %s, 仓库: %s/%s, 事件: %s",
		target.platform, target.owner, target.repo, joinKinds(target.kinds)))
}

func (h *Handlers) handleList(msg *tgbotapi.Message) {
	subs, err := h.manager.ListSubscriptions(h.destination(msg))
	if err != nil {
		h.sendReply(msg.Chat.ID, "查询订阅失败: "+err.Error())
		return
	}
	if len(subs) == 0 {
		h.sendReply(msg.Chat.ID, "当前没有任何订阅。使用 /subscribe 添加。")
		return
	}

	var b strings.Builder
	b.WriteString("📋 *当前订阅:*\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n• [%s] %s/%s (%s)", sub.Platform, sub.Owner, sub.Repo, joinKinds(sub.Kinds))
		if len(sub.Branches) > 0 {
			fmt.Fprintf(&b, " 分支: %s", strings.Join(sub.Branches, ","))
		}
	}
	h.sendReply(msg.Chat.ID, b.String())
}

func (h *Handlers) handlePushNow(ctx context.Context, msg *tgbotapi.Message) {
	h.sendReply(msg.Chat.ID, "正在获取当前仓库状态…")
	if err := h.scheduler.PushNow(ctx, h.destination(msg)); err != nil {
		h.sendReply(msg.Chat.ID, "推送失败: "+err.Error())
	}
}

func (h *Handlers) destination(msg *tgbotapi.Message) watch.Destination {
	return watch.Destination{
		BotID:   h.botID,
		GroupID: strconv.FormatInt(msg.Chat.ID, 10),
	}
}

func (h *Handlers) sendReply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := h.api.Send(msg); err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

// target is one parsed "[platform:]owner/repo[:branch] [kinds]" argument.
type target struct {
	platform platform.Platform
	owner    string
	repo     string
	branch   string
	kinds    []storage.EventKind
}

func parseTarget(args string) (*target, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return nil, fmt.Errorf("用法: /subscribe [平台:]owner/repo[:分支] [push,issue]")
	}

	ident := fields[0]
	t := &target{platform: platform.GitHub}

	// Leading "platform:" selector.
	if idx := strings.Index(ident, ":"); idx > 0 && !strings.Contains(ident[:idx], "/") {
		p, err := platform.Parse(strings.ToLower(ident[:idx]))
		if err != nil {
			return nil, fmt.Errorf("不支持的平台: %s", ident[:idx])
		}
		t.platform = p
		ident = ident[idx+1:]
	}

	// Trailing ":branch" selector.
	if idx := strings.LastIndex(ident, ":"); idx > 0 {
		t.branch = ident[idx+1:]
		ident = ident[:idx]
	}

	parts := strings.SplitN(ident, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("仓库格式应为 owner/repo")
	}
	t.owner, t.repo = parts[0], parts[1]

	if len(fields) > 1 {
		for _, raw := range strings.Split(fields[1], ",") {
			raw = strings.TrimSpace(strings.ToLower(raw))
			if raw == "" {
				continue
			}
			kind, err := storage.ParseKind(raw)
			if err != nil {
				return nil, fmt.Errorf("不支持的事件类型: %s (可选 push,issue)", raw)
			}
			t.kinds = append(t.kinds, kind)
		}
	}
	if len(t.kinds) == 0 {
		t.kinds = []storage.EventKind{storage.KindPush}
	}
	return t, nil
}

func joinKinds(kinds []storage.EventKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}
