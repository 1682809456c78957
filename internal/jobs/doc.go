/*
Package jobs implements admission control and the job registry.

TryAdmit reserves one of a fixed number of slots and returns a Job whose
slot is held until Unregister or Cancel. While a segment transcodes, its
process is attached with Register, which must happen before the process
starts; Cancel kills the attached process, cancels the job's context and
frees the slot. The retention sweeper asks Claims before deleting anything.
*/
package jobs
