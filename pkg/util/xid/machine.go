package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
)

// osHostname 测试注入点
var osHostname = os.Hostname

// 机器 ID 来源的环境变量
const (
	EnvMachineID = "XRESILIENCE_MACHINE_ID" // 直接指定 0-65535
	EnvPodName   = "POD_NAME"               // K8s Downward API 注入的 metadata.name
	EnvHostname  = "HOSTNAME"
)

// hashedEnvs 按优先级排列，取值非空即哈希为机器 ID
var hashedEnvs = []string{EnvPodName, EnvHostname}

// DefaultMachineID 获取 Sonyflake 机器 ID。
// 显式设置的 XRESILIENCE_MACHINE_ID 优先，其次依次哈希 POD_NAME、HOSTNAME、os.Hostname()。
// 哈希存在碰撞可能，同一 DLQ 上的多副本消费者应显式设置。
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s value %q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}

	for _, env := range hashedEnvs {
		if v := os.Getenv(env); v != "" {
			return hashToMachineID(v), nil
		}
	}

	host, err := osHostname()
	if err == nil && host == "" {
		err = errors.New("empty hostname")
	}
	if err != nil {
		return 0, fmt.Errorf("xid: no machine ID source available: %w", err)
	}
	return hashToMachineID(host), nil
}

// hashToMachineID FNV-1a 32 位哈希，高低 16 位异或折叠。
func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum)
}
