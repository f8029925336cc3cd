// Package edge implements tts.Provider against the Edge speech websocket
// service: SSML goes out as text frames, audio comes back in binary frames.
package edge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vocify/pkg/faults"
	"vocify/pkg/tts"
)

const dialAttempts = 3

// Settings holds the connection parameters for the speech service.
// All values are required; LoadSettings reads them from the environment.
type Settings struct {
	BaseURL            string
	Origin             string
	UserAgent          string
	TrustedClientToken string
	SecMSGecVersion    string
}

// LoadSettings reads the service settings from EDGE_TTS_* environment
// variables (typically populated from a .env file).
func LoadSettings() (Settings, error) {
	s := Settings{
		BaseURL:            os.Getenv("EDGE_TTS_BASE_URL"),
		Origin:             os.Getenv("EDGE_TTS_ORIGIN"),
		UserAgent:          os.Getenv("EDGE_TTS_USER_AGENT"),
		TrustedClientToken: os.Getenv("EDGE_TTS_TRUSTED_CLIENT_TOKEN"),
		SecMSGecVersion:    os.Getenv("EDGE_TTS_SEC_MS_GEC_VERSION"),
	}

	missing := []string{}
	if s.BaseURL == "" {
		missing = append(missing, "EDGE_TTS_BASE_URL")
	}
	if s.Origin == "" {
		missing = append(missing, "EDGE_TTS_ORIGIN")
	}
	if s.UserAgent == "" {
		missing = append(missing, "EDGE_TTS_USER_AGENT")
	}
	if s.TrustedClientToken == "" {
		missing = append(missing, "EDGE_TTS_TRUSTED_CLIENT_TOKEN")
	}
	if s.SecMSGecVersion == "" {
		missing = append(missing, "EDGE_TTS_SEC_MS_GEC_VERSION")
	}
	if len(missing) > 0 {
		return Settings{}, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	return s, nil
}

// Provider implements tts.Provider for the Edge speech service.
type Provider struct {
	settings Settings
}

// NewProvider creates a new Edge provider.
func NewProvider(settings Settings) *Provider {
	return &Provider{settings: settings}
}

// Synthesize generates an .mp3 file for text using the named neural voice.
func (p *Provider) Synthesize(ctx context.Context, text, voice string, speed float64, outputPath string) (string, error) {
	if voice == "" {
		return "", fmt.Errorf("synthesize: %w", faults.ErrVoiceNotFound)
	}

	if !strings.HasSuffix(strings.ToLower(outputPath), ".mp3") {
		outputPath += ".mp3"
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	conn, err := p.dial(ctx)
	if err != nil {
		tts.Log("edge", voice, text, err)
		return "", err
	}
	defer conn.Close()

	if err := p.sendConfig(conn); err != nil {
		return "", err
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := p.sendSSML(conn, voice, text, speed, requestID); err != nil {
		return "", err
	}

	err = p.consumeResponses(ctx, conn, file)
	tts.Log("edge", voice, text, err)
	if err != nil {
		return "", err
	}

	return "mp3", nil
}

// Voices returns the supported neural voices. The service has no listing
// endpoint on this transport, so the catalog is fixed.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	return []tts.Voice{
		{ID: "en-US-AvaMultilingualNeural", Name: "Ava (Multilingual)", Language: "en-US"},
		{ID: "en-US-AndrewMultilingualNeural", Name: "Andrew (Multilingual)", Language: "en-US"},
		{ID: "en-GB-SoniaNeural", Name: "Sonia (UK)", Language: "en-GB"},
		{ID: "fr-FR-VivienneNeural", Name: "Vivienne (France)", Language: "fr-FR"},
		{ID: "de-DE-SeraphinaNeural", Name: "Seraphina (Germany)", Language: "de-DE"},
	}, nil
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Origin", p.settings.Origin)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("User-Agent", p.settings.UserAgent)
	header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	muid := strings.ReplaceAll(uuid.New().String(), "-", "")
	header.Set("Cookie", fmt.Sprintf("muid=%s", muid))

	token := generateSecMSGec(p.settings.TrustedClientToken)
	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		p.settings.BaseURL, p.settings.TrustedClientToken, token, p.settings.SecMSGecVersion)

	var dialErr error
	for i := 0; i < dialAttempts; i++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		dialErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("websocket dial failed after %d attempts: %w: %w", dialAttempts, faults.ErrEngineStart, dialErr)
}

// generateSecMSGec derives the handshake token: clock ticks floored to a
// 5-minute boundary, concatenated with the client token, SHA-256, upper hex.
func generateSecMSGec(trustedClientToken string) string {
	ticks := float64(time.Now().Unix()) + 11644473600
	ticks -= float64(int64(ticks) % 300)
	ticks *= 1e7

	hash := sha256.Sum256([]byte(fmt.Sprintf("%.0f%s", ticks, trustedClientToken)))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func (p *Provider) sendConfig(conn *websocket.Conn) error {
	configMsg := "Content-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"audio-24khz-48kbitrate-mono-mp3"}}}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(configMsg)); err != nil {
		return fmt.Errorf("failed to send speech.config: %w", err)
	}
	return nil
}

func (p *Provider) sendSSML(conn *websocket.Conn, voice, text string, speed float64, requestID string) error {
	ssml := buildSSML(voice, text, speed)
	msg := fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nPath:ssml\r\n\r\n%s", requestID, ssml)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send ssml: %w", err)
	}
	return nil
}

// buildSSML wraps escaped text in a speak document with a prosody rate
// derived from the relative speed (1.0 -> +0%, 1.5 -> +50%).
func buildSSML(voice, text string, speed float64) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	escaped := replacer.Replace(text)
	rate := prosodyRate(speed)

	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>"+
		"<voice name='%s'><prosody rate='%s'>%s</prosody></voice></speak>", voice, rate, escaped)
}

func prosodyRate(speed float64) string {
	if speed <= 0 {
		speed = 1.0
	}
	return fmt.Sprintf("%+.0f%%", (speed-1.0)*100)
}

func (p *Provider) consumeResponses(ctx context.Context, conn *websocket.Conn, file *os.File) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message failed: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				return nil
			}
		case websocket.BinaryMessage:
			if err := writeAudioFrame(data, file); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// writeAudioFrame strips the length-prefixed header from a binary frame and
// appends the audio payload to file. Truncated frames are skipped.
func writeAudioFrame(data []byte, file *os.File) error {
	if len(data) < 2 {
		return nil
	}
	headerLength := int(uint16(data[0])<<8 | uint16(data[1]))
	if len(data) < 2+headerLength {
		return nil
	}
	audio := data[2+headerLength:]
	if len(audio) == 0 {
		return nil
	}
	if _, err := file.Write(audio); err != nil {
		return fmt.Errorf("write audio data failed: %w", err)
	}
	return nil
}
