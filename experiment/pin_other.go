//go:build !linux

package experiment

import "k8s.io/klog/v2"

func pinToCore(core int) error {
	klog.Warningf("core pinning is only supported on Linux, not pinning to core %d", core)
	return nil
}
