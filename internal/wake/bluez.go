package wake

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBusName   = "org.bluez"
	bluezDevice    = "org.bluez.Device1"
	bluezGattChar  = "org.bluez.GattCharacteristic1"
	defaultAdapter = "hci0"
)

// bluezLink drives BlueZ over the system D-Bus. Home Assistant OS hands the
// host bus into addon containers, which is the only way at the radio here.
type bluezLink struct {
	adapter string
}

func newBlueZLink(adapter string) *bluezLink {
	if adapter == "" {
		adapter = defaultAdapter
	}
	return &bluezLink{adapter: adapter}
}

func (l *bluezLink) Connect(ctx context.Context, mac string) (gattSession, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}

	path := devicePath(l.adapter, mac)
	device := conn.Object(bluezBusName, path)
	if err := device.CallWithContext(ctx, bluezDevice+".Connect", 0).Store(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s: %w", mac, err)
	}
	return &bluezSession{conn: conn, devicePath: path}, nil
}

type bluezSession struct {
	conn       *dbus.Conn
	devicePath dbus.ObjectPath
}

func (s *bluezSession) WriteCharacteristic(ctx context.Context, uuid string, payload []byte, acknowledged bool) error {
	charPath, err := s.findCharacteristic(ctx, uuid)
	if err != nil {
		return err
	}
	writeType := "command"
	if acknowledged {
		writeType = "request"
	}
	options := map[string]interface{}{"type": writeType}
	char := s.conn.Object(bluezBusName, charPath)
	return char.CallWithContext(ctx, bluezGattChar+".WriteValue", 0, payload, options).Store()
}

func (s *bluezSession) Close(ctx context.Context) error {
	device := s.conn.Object(bluezBusName, s.devicePath)
	err := device.CallWithContext(ctx, bluezDevice+".Disconnect", 0).Store()
	_ = s.conn.Close()
	return err
}

// findCharacteristic walks BlueZ's object tree for a characteristic with the
// wanted UUID underneath this device. GATT objects only appear after service
// discovery, which BlueZ runs as part of Device1.Connect.
func (s *bluezSession) findCharacteristic(ctx context.Context, uuid string) (dbus.ObjectPath, error) {
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := s.conn.Object(bluezBusName, dbus.ObjectPath("/"))
	if err := root.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&managed); err != nil {
		return "", fmt.Errorf("managed objects: %w", err)
	}

	prefix := string(s.devicePath) + "/"
	for path, interfaces := range managed {
		props, ok := interfaces[bluezGattChar]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if value, ok := props["UUID"].Value().(string); ok && strings.EqualFold(value, uuid) {
			return path, nil
		}
	}
	return "", fmt.Errorf("characteristic %s not found under %s", uuid, s.devicePath)
}

func devicePath(adapter, mac string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter + "/dev_" + strings.ReplaceAll(mac, ":", "_"))
}
