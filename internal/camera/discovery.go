package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	videoDevicePattern = regexp.MustCompile(`^/dev/video\d+$`)
	deviceNumberRe     = regexp.MustCompile(`video(\d+)`)
)

// DeviceInfo は検出されたカメラデバイスの情報
type DeviceInfo struct {
	Device string `json:"device"`
	Name   string `json:"name"`
}

// Discovery はカメラデバイスの検出を行うインターフェース
type Discovery interface {
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
}

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	// Pattern は検索するデバイスファイルのglobパターン
	Pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{Pattern: "/dev/video*"}
}

// ListDevices はシステム内の利用可能なカメラデバイスを番号順に返す
func (d *LinuxDiscovery) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	matches, err := filepath.Glob(d.Pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	devices := make([]DeviceInfo, 0, len(matches))
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !IsDeviceAvailable(match) {
			continue
		}
		devices = append(devices, DeviceInfo{
			Device: match,
			Name:   deviceName(ctx, match),
		})
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたV4L2デバイスが開けるかチェックする
func IsDeviceAvailable(device string) bool {
	if !videoDevicePattern.MatchString(device) {
		return false
	}

	if _, err := os.Stat(device); err != nil {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()

	return true
}

// deviceName はv4l2-ctlの "Card type" からカメラ名を得る。取れなければ番号から作る
func deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Card type") {
				continue
			}
			if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
				if name := strings.TrimSpace(parts[1]); name != "" {
					return name
				}
			}
		}
	}

	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberRe.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// StaticDiscovery は固定のデバイス一覧を返す。テストやカメラのない環境で使う
type StaticDiscovery struct {
	Devices []DeviceInfo
}

// ListDevices は登録されたデバイスの複製を返す
func (s *StaticDiscovery) ListDevices(_ context.Context) ([]DeviceInfo, error) {
	devices := make([]DeviceInfo, len(s.Devices))
	copy(devices, s.Devices)
	return devices, nil
}
