// Package procutil prepares child processes: no console window on Windows,
// and on context cancellation the whole process tree (svn plus any ssh
// tunnel it spawned) is terminated.
package procutil

import "time"

// waitDelay bounds how long Wait keeps reading pipes held open by
// grandchildren after the process exited or was killed.
const waitDelay = 5 * time.Second
