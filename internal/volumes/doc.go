// Package volumes finds mounted volumes a show can be exported to, usually
// SD cards for controller players, and watches udev for card insertions.
//
// Listing reads the kernel mount table and inspects each real block device
// mount with statfs and access(2). The watcher is the only goroutine in the
// repository and never touches export state.
package volumes
