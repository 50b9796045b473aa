// Command slack-sign sends a signed slash command or app mention to a
// running bot, the way Slack would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codewars-bot/internal/slack"
	"github.com/codewars-bot/pkg/logx"
)

func main() {
	target := flag.String("url", "http://localhost:8080", "Bot base URL")
	secret := flag.String("secret", os.Getenv("SLACK_SIGNING_SECRET"), "Slack signing secret")
	mode := flag.String("mode", "command", "Request kind: command or mention")
	skew := flag.Duration("skew", 0, "Shift the request timestamp, e.g. -10m to test staleness")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Parse()

	logger := logx.NewConsole("info")

	text := strings.Join(flag.Args(), " ")
	if *secret == "" {
		logger.Fatal().Msg("signing secret missing, set -secret or SLACK_SIGNING_SECRET")
	}

	path, contentType, body, err := buildRequest(*mode, text)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot build request")
	}

	ts := strconv.FormatInt(time.Now().Add(*skew).Unix(), 10)
	signature := slack.NewVerifier(*secret, 0).Sign(ts, body)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*target, "/")+path, bytes.NewReader(body))
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot build request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(slack.HeaderTimestamp, ts)
	req.Header.Set(slack.HeaderSignature, signature)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Fatal().Err(err).Msg("request failed")
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	logger.Info().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("response")
	fmt.Println(string(out))

	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func buildRequest(mode, text string) (path, contentType string, body []byte, err error) {
	switch mode {
	case "command":
		form := url.Values{
			"command": {"/codewars"},
			"text":    {text},
			"user_id": {"U00000000"},
		}
		return "/slack/commands", "application/x-www-form-urlencoded", []byte(form.Encode()), nil

	case "mention":
		payload := map[string]interface{}{
			"type":    slack.CallbackEvent,
			"team_id": "T00000000",
			"event": slack.AppMention{
				Type:    slack.EventAppMention,
				User:    "U00000000",
				Text:    "<@U0BOT> " + text,
				Channel: "C00000000",
			},
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", "", nil, err
		}
		return "/slack/events", "application/json", raw, nil
	}
	return "", "", nil, fmt.Errorf("unknown mode %q", mode)
}
