package services

import (
	"context"
	"time"

	"deskbridge/internal/models"
)

// Command names exposed to the front end
const (
	CommandGreet                  = "greet"
	CommandGetHardwareInfo        = "get_hardware_info"
	CommandCalculate              = "calculate"
	CommandStartProcessMonitoring = "start_process_monitoring"
	CommandStopProcessMonitoring  = "stop_process_monitoring"
)

// Commands bundles the dependencies of the demo command handlers
type Commands struct {
	// DB is handed to every handler set; none of the demo commands read it yet
	DB         *Database
	Hardware   *HardwareService
	Calculator *Calculator
	Monitor    *ProcessMonitor
	Now        func() time.Time
}

// Register installs every demo command on d
func (c *Commands) Register(d *Dispatcher) {
	if c.Now == nil {
		c.Now = time.Now
	}

	d.Register(CommandGreet, c.greet)
	d.Register(CommandGetHardwareInfo, c.getHardwareInfo)
	d.Register(CommandCalculate, c.calculate)
	d.Register(CommandStartProcessMonitoring, c.startProcessMonitoring)
	d.Register(CommandStopProcessMonitoring, c.stopProcessMonitoring)
}

func (c *Commands) greet(_ context.Context, _ Invocation) (interface{}, error) {
	return Greet(c.Now()), nil
}

func (c *Commands) getHardwareInfo(ctx context.Context, _ Invocation) (interface{}, error) {
	return c.Hardware.GetHardwareInfo(ctx)
}

func (c *Commands) calculate(_ context.Context, inv Invocation) (interface{}, error) {
	var req models.CalculationRequest
	if err := DecodeArgs(inv.Args, &req); err != nil {
		return nil, err
	}
	return c.Calculator.Calculate(*req.A, *req.B, req.Operation)
}

func (c *Commands) startProcessMonitoring(_ context.Context, inv Invocation) (interface{}, error) {
	return c.Monitor.Start(inv.View)
}

func (c *Commands) stopProcessMonitoring(_ context.Context, inv Invocation) (interface{}, error) {
	var req models.StopMonitorRequest
	if err := DecodeArgs(inv.Args, &req); err != nil {
		return nil, err
	}
	if err := c.Monitor.Stop(req.MonitorID); err != nil {
		return nil, err
	}
	return map[string]string{"monitor_id": req.MonitorID, "status": "stopped"}, nil
}
