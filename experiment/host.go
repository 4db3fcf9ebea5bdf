package experiment

import (
	"github.com/shirou/gopsutil/host"
	"k8s.io/klog/v2"
)

type hostInfo struct {
	name   string
	kernel string
}

func readHostInfo() hostInfo {
	info, err := host.Info()
	if err != nil {
		klog.Warningf("cannot read host information: %v", err)
		return hostInfo{}
	}

	return hostInfo{
		name:   info.Hostname,
		kernel: info.KernelVersion,
	}
}
