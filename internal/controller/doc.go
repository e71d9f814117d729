// Package controller drives a keyboard LED device from a queue of display
// instructions.
//
// A Controller owns one device.Handle and at most one worker goroutine. Producers
// append instructions with Schedule and may remove them with Cancel while the
// worker consumes the queue in order:
//
//	c, err := controller.Create(id, device.ModelMK750, nil)
//	if err != nil {
//		return err
//	}
//	c.Schedule(controller.NewUniform(device.RGB{R: 255}))
//	if err := c.Start(); err != nil {
//		return err
//	}
//	...
//	c.Stop()
//	if c.Join(time.Second) == controller.StateJoinTimedOut {
//		return errors.New("worker did not stop")
//	}
//	if err := c.Err(); err != nil {
//		log.Printf("worker failed: %v", err)
//	}
//	return c.Close()
//
// The first device failure inside the worker is latched and ends the worker;
// Err reports it. Control is always disabled on the way out.
package controller
