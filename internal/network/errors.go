package network

import "errors"

var (
	ErrWiFiConnectionFailed = errors.New("wifi connection failed")
	ErrNoWiFiDevice         = errors.New("cannot find a wifi device")
	ErrDeviceByInterface    = errors.New("cannot find network device with interface name")
	ErrNoAccessPoints       = errors.New("getting access points failed")
	ErrCreatePortal         = errors.New("creating the captive portal failed")
	ErrStopPortal           = errors.New("stopping the access point failed")
	ErrDeleteAccessPoint    = errors.New("deleting access point connection profile failed")
	ErrStartHelper          = errors.New("starting the dhcp/dns helper failed")
	ErrStopHelper           = errors.New("stopping the dhcp/dns helper failed")
	ErrRecvCommand          = errors.New("receiving network command failed")
	ErrStartService         = errors.New("starting the network manager service failed")
	ErrServiceNotActive     = errors.New("network manager service state is not active")
	ErrHandlerPanic         = errors.New("command handler panicked")
)
